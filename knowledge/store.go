// Package knowledge holds the static policy content that grounds the bot's
// answers, keyed by channel kind, with a keyword-overlap lookup.
package knowledge

import (
	"regexp"
	"strings"
)

// Kind is the logical category a configured channel maps to.
type Kind string

const (
	KindFinance Kind = "finance"
	KindNavan   Kind = "navan"
)

// Entry is one topic/content pair. Keywords extend the match surface beyond
// the topic name's own tokens.
type Entry struct {
	Topic    string   `yaml:"topic"`
	Keywords []string `yaml:"keywords,omitempty"`
	Content  string   `yaml:"content"`
}

// Store is read-only after construction and safe for concurrent lookups.
// Entries keep their insertion order per kind.
type Store struct {
	entries map[Kind][]Entry
}

func NewStore(corpus map[Kind][]Entry) *Store {
	entries := make(map[Kind][]Entry, len(corpus))
	for kind, items := range corpus {
		entries[kind] = append([]Entry(nil), items...)
	}
	return &Store{entries: entries}
}

// Lookup returns every entry of kind whose topic name appears in the question
// or whose topic/keyword tokens intersect the question's tokens, in insertion
// order. Unknown kinds and no-match questions yield an empty result, not an
// error: the channel set is fixed by configuration and an empty knowledge
// context is a valid pipeline input.
func (s *Store) Lookup(kind Kind, question string) []Entry {
	if s == nil {
		return nil
	}
	items := s.entries[kind]
	if len(items) == 0 {
		return nil
	}
	qLower := strings.ToLower(question)
	qTokens := Tokenize(question)

	var out []Entry
	for _, entry := range items {
		if entryMatches(entry, qLower, qTokens) {
			out = append(out, entry)
		}
	}
	return out
}

// Kinds returns the kinds the store holds entries for.
func (s *Store) Kinds() []Kind {
	if s == nil {
		return nil
	}
	out := make([]Kind, 0, len(s.entries))
	for kind := range s.entries {
		out = append(out, kind)
	}
	return out
}

func (s *Store) Len(kind Kind) int {
	if s == nil {
		return 0
	}
	return len(s.entries[kind])
}

func entryMatches(entry Entry, questionLower string, questionTokens map[string]bool) bool {
	name := topicDisplayName(entry.Topic)
	if name != "" && strings.Contains(questionLower, name) {
		return true
	}
	for token := range entryTokens(entry) {
		if questionTokens[token] {
			return true
		}
	}
	return false
}

func entryTokens(entry Entry) map[string]bool {
	tokens := Tokenize(topicDisplayName(entry.Topic))
	for _, kw := range entry.Keywords {
		for token := range Tokenize(kw) {
			tokens[token] = true
		}
	}
	return tokens
}

// topicDisplayName normalizes a topic key like "expense_policy" to the
// phrase "expense policy" used for substring matching.
func topicDisplayName(topic string) string {
	name := strings.ToLower(strings.TrimSpace(topic))
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopwords mirrors the original tokenizer so lookup and history similarity
// score the same way.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "shall": true, "should": true, "may": true,
	"might": true, "must": true, "can": true, "could": true, "i": true,
	"me": true, "my": true, "we": true, "our": true, "you": true,
	"your": true, "he": true, "she": true, "it": true, "they": true,
	"them": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "into": true,
	"about": true, "that": true, "this": true, "what": true, "which": true,
	"who": true, "how": true, "when": true, "where": true, "why": true,
	"not": true, "no": true, "so": true, "if": true, "then": true,
}

// Tokenize lowercases text and returns its non-stopword word set.
func Tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopwords[word] {
			continue
		}
		out[word] = true
	}
	return out
}

// Overlap counts the non-stopword tokens two texts share.
func Overlap(a, b string) int {
	at := Tokenize(a)
	bt := Tokenize(b)
	n := 0
	for token := range at {
		if bt[token] {
			n++
		}
	}
	return n
}
