// Package adapter provides shared TCP lifecycle management for the
// device-facing listeners.
package adapter

import "context"

// Adapter represents a device-facing server that can be managed by the
// gateway server.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. Startup: Serve() starts the listener and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Implementations must be safe for concurrent use; Stop may be called
// concurrently with Serve.
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled
	// or an unrecoverable error occurs. Cancellation triggers graceful
	// shutdown: stop accepting, wait for active connections up to the
	// configured timeout, then force-close stragglers.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Idempotent, and safe to call
	// concurrently with Serve.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Addr returns the listen address once the listener is ready.
	Addr() string
}
