// Package prompt assembles the user-facing prompt sent to the model. Compose
// is a pure function: identical inputs produce byte-identical output.
package prompt

import (
	"strings"
	"unicode/utf8"

	"github.com/kaluza/askbot/history"
	"github.com/kaluza/askbot/knowledge"
)

const (
	knowledgeHeader = "## Relevant Company Policy / Knowledge Base"
	historyHeader   = "## Similar Past Questions & Answers from This Channel"
	questionHeader  = "## New Question"

	// DefaultMaxChars bounds the composed prompt well inside the model's
	// context window; roughly 6k tokens of context.
	DefaultMaxChars = 24000
)

type Input struct {
	Question  string
	Knowledge []knowledge.Entry
	History   []history.QAPair

	// ExtraLabel/Extra form the configuration-gated integration block, e.g.
	// "Navan Account Context". Omitted when Extra is empty.
	ExtraLabel string
	Extra      string

	MaxChars int
}

// Compose renders the prompt sections in fixed order: knowledge, history,
// extra integration context, then the live question. When the result would
// exceed MaxChars, lowest-ranked history pairs are dropped first, then
// knowledge entry content is clipped; the question is never dropped.
func Compose(in Input) string {
	maxChars := in.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	hist := append([]history.QAPair(nil), in.History...)
	entries := append([]knowledge.Entry(nil), in.Knowledge...)

	out := render(in.Question, entries, hist, in.ExtraLabel, in.Extra)
	for len(out) > maxChars && len(hist) > 0 {
		hist = hist[:len(hist)-1]
		out = render(in.Question, entries, hist, in.ExtraLabel, in.Extra)
	}
	for len(out) > maxChars && len(entries) > 0 {
		clipped := clipEntries(entries, maxChars, len(out))
		next := render(in.Question, clipped, hist, in.ExtraLabel, in.Extra)
		if len(next) >= len(out) {
			// Content is exhausted; drop whole entries from the end.
			entries = entries[:len(entries)-1]
			out = render(in.Question, entries, hist, in.ExtraLabel, in.Extra)
			continue
		}
		entries = clipped
		out = next
	}
	return out
}

func render(question string, entries []knowledge.Entry, pairs []history.QAPair, extraLabel, extra string) string {
	var sections []string

	if len(entries) > 0 {
		var b strings.Builder
		b.WriteString(knowledgeHeader)
		for _, entry := range entries {
			b.WriteString("\n### ")
			b.WriteString(entry.Topic)
			b.WriteString("\n")
			b.WriteString(entry.Content)
		}
		sections = append(sections, b.String())
	}

	if len(pairs) > 0 {
		var b strings.Builder
		b.WriteString(historyHeader)
		for _, pair := range pairs {
			b.WriteString("\nQ: ")
			b.WriteString(pair.Question)
			b.WriteString("\nA: ")
			b.WriteString(pair.Answer)
		}
		sections = append(sections, b.String())
	}

	if strings.TrimSpace(extra) != "" {
		label := strings.TrimSpace(extraLabel)
		if label == "" {
			label = "Additional Context"
		}
		sections = append(sections, "## "+label+"\n"+strings.TrimSpace(extra))
	}

	sections = append(sections, questionHeader+"\n"+strings.TrimSpace(question))
	return strings.Join(sections, "\n\n")
}

// clipEntries shrinks each entry's content proportionally so the rendered
// prompt lands within budget. The overshoot is padded to cover the appended
// ellipses and the per-entry flooring of the proportional cut; Compose still
// verifies the result and iterates. Clip points stay deterministic for given
// inputs.
func clipEntries(entries []knowledge.Entry, maxChars, renderedLen int) []knowledge.Entry {
	over := renderedLen - maxChars
	if over <= 0 {
		return entries
	}
	over += 4 * len(entries)
	total := 0
	for _, entry := range entries {
		total += len(entry.Content)
	}
	if total == 0 {
		return entries
	}
	out := make([]knowledge.Entry, len(entries))
	for i, entry := range entries {
		cut := over * len(entry.Content) / total
		keep := len(entry.Content) - cut
		if keep < 0 {
			keep = 0
		}
		for keep > 0 && keep < len(entry.Content) && !utf8.RuneStart(entry.Content[keep]) {
			keep--
		}
		if keep < len(entry.Content) {
			entry.Content = strings.TrimSpace(entry.Content[:keep]) + "…"
		}
		out[i] = entry
	}
	return out
}
