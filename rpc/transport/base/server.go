package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBufferSize     = 64 * 1024 // 64 KB
	defaultWorkersPerConn = 16
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector         IServerConnector
	handler           transport.ServerHandleFunc
	config            common.ServerConfig
	listener          net.Listener
	listenerMu        sync.Mutex
	closed            atomic.Bool
	bufferPool        *sync.Pool
	bufferSize        int
	maxWorkersPerConn int
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with per-connection worker pool.
// Buffer size and workers per connection are taken from the transport config passed to Listen.
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	t.bufferSize = config.Transport.BufferSize
	if t.bufferSize <= 0 {
		t.bufferSize = defaultBufferSize
	}
	t.maxWorkersPerConn = config.Transport.WorkersPerConn
	if t.maxWorkersPerConn <= 0 {
		t.maxWorkersPerConn = defaultWorkersPerConn
	}
	bufferSize := t.bufferSize
	t.bufferPool = &sync.Pool{
		New: func() interface{} {
			return make([]byte, bufferSize)
		},
	}

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listenerMu.Lock()
	t.listener = listener
	t.listenerMu.Unlock()
	if t.closed.Load() {
		_ = listener.Close()
	}

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), listener.Addr(), t.maxWorkersPerConn)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Close() error {
	t.closed.Store(true)
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer conn.Close()

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// The buffered channel acts as a counting semaphore for the workers of this connection
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)

	var wg sync.WaitGroup

	// Protects writes to the connection
	var connMutex sync.Mutex

	// Handler function that processes requests in worker goroutines
	handleResponse := func(shardID, requestID uint64, data []byte) {
		defer func() {
			<-workerSemaphore
			wg.Done()
		}()

		start := time.Now()
		resp := t.handler(shardID, data)
		Logger.Debugf("Processed request for shard %d with requestID %d took %s", shardID, requestID, time.Since(start))

		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		// Write the response with the same requestID
		if err := writeFrame(conn, shardID, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	handleRequest := func() error {
		// Idle connections are kept open, the read deadline only applies to a started frame
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return fmt.Errorf("failed to reset read deadline: %w", err)
		}

		buf := t.bufferPool.Get().([]byte)

		shardID, requestID, data, err := readFrame(conn, buf, timeout)
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Blocks if maxWorkersPerConn is reached
		workerSemaphore <- struct{}{}
		wg.Add(1)

		go func() {
			defer t.bufferPool.Put(buf)
			handleResponse(shardID, requestID, data)
		}()

		return nil
	}

	for {
		err := handleRequest()

		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			Logger.Debugf("Connection closed by client")
			break
		}

		if err != nil {
			Logger.Errorf("Error handling request: %v", err)
			break
		}
	}

	// Wait for in-progress work before the connection is closed
	wg.Wait()
}
