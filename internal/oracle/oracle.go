// Package oracle is the decision boundary of the agent: everything the
// system wants decided (next command, step verdict, deployment plan)
// goes through a single Complete call. Providers are interchangeable
// behind the Oracle interface; the rest of the system never sees
// provider details.
package oracle

import "context"

// Request is one completion call. Temperature overrides the provider
// default when non-zero; loop interventions use this to shake the
// model out of a rut.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
}

// Oracle produces a completion for a request. Implementations must be
// safe for use from a single goroutine at a time; the executor is
// strictly sequential.
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}
