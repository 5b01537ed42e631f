// Package kit holds the transport-agnostic plumbing shared by the HTTP API
// and the MCP tools: the Endpoint abstraction, middleware chaining, request
// context keys, and response helpers.
package kit

import "context"

// Endpoint is a transport-agnostic request handler. Both the HTTP API and
// the MCP tools decode into a typed request, call an Endpoint, and encode
// the response for their transport.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one listed is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
