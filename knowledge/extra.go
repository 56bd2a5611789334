package knowledge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// extraFile is the on-disk shape of an extra knowledge file:
//
//	finance:
//	  - topic: procurement_policy
//	    keywords: [procurement, vendor]
//	    content: ...
//	navan:
//	  - topic: cancellation_policy
//	    content: ...
type extraFile map[string][]Entry

// LoadExtra reads a YAML knowledge file and appends its entries to corpus
// after the built-in ones, preserving file order. The returned map is the
// same corpus value for chaining into NewStore.
func LoadExtra(corpus map[Kind][]Entry, path string) (map[Kind][]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	var extra extraFile
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("parse knowledge file %s: %w", path, err)
	}
	if corpus == nil {
		corpus = make(map[Kind][]Entry)
	}
	for rawKind, items := range extra {
		kind := Kind(rawKind)
		for _, entry := range items {
			if entry.Topic == "" {
				return nil, fmt.Errorf("knowledge file %s: entry under %q is missing a topic", path, rawKind)
			}
			if entry.Content == "" {
				return nil, fmt.Errorf("knowledge file %s: topic %q is missing content", path, entry.Topic)
			}
			corpus[kind] = append(corpus[kind], entry)
		}
	}
	return corpus, nil
}
