// Package provider defines the model backend interface and its wire-neutral types.
package provider

import "context"

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Chat sends a non-streaming chat request and returns the full reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HealthCheckable is implemented by providers that can report on the
// backend they talk to.
type HealthCheckable interface {
	// Ping checks that the backend answers at all.
	Ping(ctx context.Context) error

	// Version returns the backend server version.
	Version(ctx context.Context) (string, error)

	// Models lists the models installed on the backend.
	Models(ctx context.Context) ([]string, error)
}
