package adapter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wheelseye/devicegateway/internal/logger"
)

// ConnectionHandler represents a protocol-specific connection that serves
// one device. Serve blocks until the connection is closed or the context is
// cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates protocol-specific connection handlers for
// accepted TCP connections. The connectionID is a process-unique short id
// used for logging, session binding and forced closure.
type ConnectionFactory interface {
	NewConnection(conn net.Conn, connectionID string) ConnectionHandler
}

// ConnectionMetrics records connection lifecycle metrics. Nil disables
// collection.
type ConnectionMetrics interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	SetActiveConnections(count int32)
}

// BaseConfig holds configuration common to all listeners.
type BaseConfig struct {
	// ListenAddress is the TCP address to listen on, e.g. ":5023".
	ListenAddress string

	// MaxConnections limits concurrent client connections. 0 means
	// unlimited.
	MaxConnections int

	// ShutdownTimeout is the maximum duration to wait for active
	// connections during graceful shutdown.
	ShutdownTimeout time.Duration
}

// OnConnectionClose is an optional callback invoked when a connection's
// serve goroutine completes, before WaitGroup release. Used for
// protocol-specific cleanup such as unbinding the device session.
type OnConnectionClose func(connectionID string)

// BaseAdapter provides shared TCP lifecycle management: listener setup,
// connection tracking, semaphore-based limiting, graceful shutdown with
// forced closure, and targeted connection closing for session eviction.
//
// All exported methods are safe for concurrent use. Shutdown is idempotent
// through sync.Once.
type BaseAdapter struct {
	// Config holds the shared listener configuration.
	Config BaseConfig

	// protocolName is the human-readable protocol name for logging.
	protocolName string

	// Metrics is an optional lifecycle recorder.
	Metrics ConnectionMetrics

	// listener accepts device connections; closed during shutdown.
	listener net.Listener

	// activeConns tracks serve goroutines for graceful shutdown.
	activeConns sync.WaitGroup

	// shutdownOnce makes shutdown idempotent.
	shutdownOnce sync.Once

	// Shutdown is closed when shutdown begins; monitored by the accept
	// loop.
	Shutdown chan struct{}

	// ConnCount is the current number of active connections.
	ConnCount atomic.Int32

	// connSemaphore limits concurrency when MaxConnections > 0.
	connSemaphore chan struct{}

	// ShutdownCtx is cancelled during shutdown to abort in-flight
	// handling; passed to every connection's Serve.
	ShutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to net.Conn for targeted and
	// forced closure.
	activeConnections sync.Map

	// connSeq generates process-unique connection ids.
	connSeq atomic.Uint64

	// ListenerReady is closed when the listener is accepting. Used by
	// tests to synchronize with startup.
	ListenerReady chan struct{}

	listenerMu sync.RWMutex
}

// NewBaseAdapter creates an adapter in a stopped state. Call
// ServeWithFactory to start.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug(protocol+" connection limit", logger.Count(config.MaxConnections))
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		Shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		ShutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}
}

// ServeWithFactory runs the accept loop, delegating per-connection handling
// to the factory. Returns nil on graceful shutdown.
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory, onClose OnConnectionClose) error {
	listener, err := net.Listen("tcp", b.Config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, b.Config.ListenAddress, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	close(b.ListenerReady)

	logger.Info(b.protocolName+" server listening", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		logger.Info(b.protocolName+" shutdown signal received", logger.Err(ctx.Err()))
		b.initiateShutdown()
	}()

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		tcpConn, err := b.listener.Accept()
		if err != nil {
			if b.connSemaphore != nil {
				<-b.connSemaphore
			}
			select {
			case <-b.Shutdown:
				return b.gracefulShutdown()
			default:
				logger.Debug("error accepting "+b.protocolName+" connection", logger.Err(err))
				continue
			}
		}

		// Trackers send tiny frames; Nagle only adds ACK latency.
		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("failed to set TCP_NODELAY", logger.Err(err))
			}
		}

		b.activeConns.Add(1)
		b.ConnCount.Add(1)

		connectionID := fmt.Sprintf("c%06d", b.connSeq.Add(1))
		b.activeConnections.Store(connectionID, tcpConn)

		currentConns := b.ConnCount.Load()
		if b.Metrics != nil {
			b.Metrics.RecordConnectionAccepted()
			b.Metrics.SetActiveConnections(currentConns)
		}

		logger.Debug(b.protocolName+" connection accepted",
			logger.ConnectionID(connectionID),
			logger.ClientAddr(tcpConn.RemoteAddr().String()),
			logger.Count(int(currentConns)))

		conn := factory.NewConnection(tcpConn, connectionID)

		go func(id string, tcp net.Conn) {
			defer func() {
				if onClose != nil {
					onClose(id)
				}

				b.activeConnections.Delete(id)
				_ = tcp.Close()

				b.activeConns.Done()
				b.ConnCount.Add(-1)
				if b.connSemaphore != nil {
					<-b.connSemaphore
				}

				if b.Metrics != nil {
					b.Metrics.RecordConnectionClosed()
					b.Metrics.SetActiveConnections(b.ConnCount.Load())
				}

				logger.Debug(b.protocolName+" connection closed",
					logger.ConnectionID(id),
					logger.Count(int(b.ConnCount.Load())))
			}()

			conn.Serve(b.ShutdownCtx)
		}(connectionID, tcpConn)
	}
}

// CloseConnection force-closes one tracked connection. Used by the session
// sweeper to disconnect evicted devices. Closing an unknown id is a no-op.
func (b *BaseAdapter) CloseConnection(connectionID string) {
	if value, ok := b.activeConnections.Load(connectionID); ok {
		if conn, ok := value.(net.Conn); ok {
			_ = conn.Close()
		}
	}
}

// LookupConnection returns the tracked net.Conn for a connection id. Used
// for server-initiated writes such as command delivery.
func (b *BaseAdapter) LookupConnection(connectionID string) (net.Conn, bool) {
	value, ok := b.activeConnections.Load(connectionID)
	if !ok {
		return nil, false
	}
	conn, ok := value.(net.Conn)
	return conn, ok
}

// initiateShutdown begins graceful shutdown: stop accepting, interrupt
// blocking reads, cancel in-flight handling.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")

		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("error closing "+b.protocolName+" listener", logger.Err(err))
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
		b.cancelRequests()
	})
}

// interruptBlockingReads sets a short deadline on all active connections so
// blocked reads observe the shutdown promptly.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	b.activeConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("error setting shutdown deadline",
					"connection_id", key, logger.Err(err))
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections to finish or force-closes
// them after the configured timeout.
func (b *BaseAdapter) gracefulShutdown() error {
	activeCount := b.ConnCount.Load()
	logger.Info(b.protocolName+" graceful shutdown: waiting for active connections",
		logger.Count(int(activeCount)), "timeout", b.Config.ShutdownTimeout.String())

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.protocolName + " graceful shutdown complete")
		return nil

	case <-time.After(b.Config.ShutdownTimeout):
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown timeout exceeded, forcing closure",
			logger.Count(int(remaining)))
		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

// forceCloseConnections closes every tracked connection.
func (b *BaseAdapter) forceCloseConnections() {
	closed := 0
	b.activeConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.Close(); err == nil {
				closed++
			}
		}
		return true
	})
	if closed > 0 {
		logger.Info("force-closed connections", logger.Count(closed))
	}
}

// Stop initiates graceful shutdown and waits for active connections, up to
// the context deadline when one is supplied.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.protocolName + " graceful shutdown complete")
		return nil
	case <-ctx.Done():
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown context cancelled",
			logger.Count(int(remaining)), logger.Err(ctx.Err()))
		b.forceCloseConnections()
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// Addr returns the listen address. Blocks until the listener is ready,
// making it safe for tests that pick port 0.
func (b *BaseAdapter) Addr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Protocol returns the human-readable protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}
