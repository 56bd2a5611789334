// Package integration defines the capability interfaces third-party
// providers implement to enrich the answer pipeline. The dispatcher depends
// only on these interfaces, never on a concrete provider type.
package integration

import "context"

// ContextProvider contributes an extra labeled context block to the prompt.
// A disabled provider is skipped without error.
type ContextProvider interface {
	Name() string
	Enabled() bool

	// EnrichContext returns additional prompt context for the question, or
	// an empty string when the provider has nothing to add.
	EnrichContext(ctx context.Context, question, userEmail string) (string, error)
}
