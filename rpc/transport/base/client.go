package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// dialTimeout bounds the connection setup of a SocketConnector
const dialTimeout = 5 * time.Second

// SocketConnector is the IClientConnector of the stream socket transports (tcp, unix).
// Upgrade is optional and applies the socket options of the client config to a new connection.
type SocketConnector struct {
	Network string
	Upgrade func(conn net.Conn, config common.ClientConfig) error
}

func (c SocketConnector) GetName() string {
	return c.Network
}

func (c SocketConnector) Connect(endpoint string) (net.Conn, error) {
	return net.DialTimeout(c.Network, endpoint, dialTimeout)
}

func (c SocketConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	if c.Upgrade == nil {
		return nil
	}
	return c.Upgrade(conn, config)
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn         net.Conn
	endpoint     string
	stopCh       chan struct{} // Close signal for the reader goroutine
	requestChans *xsync.MapOf[uint64, chan responseResult]
	connMu       sync.Mutex // Protects the connection itself
	parent       *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex uint64 // Atomic counter for Round Robin
	nextRequestID uint64 // Atomic counter for unique request IDs
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector:     connector,
		nextRequestID: 1,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.config = config

	// Close all existing connections
	t.closeConnections()

	connectionsPerEP := 1
	if config.Transport.ConnectionsPerEndpoint > 0 {
		connectionsPerEP = config.Transport.ConnectionsPerEndpoint
	}

	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				stopCh:       make(chan struct{}),
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
				parent:       t,
			}

			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)

			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			go clientConn.readResponses()
		}
	}

	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	send := func(connection *clientConnection) ([]byte, error) {
		// Every attempt gets its own id, a late answer to a failed attempt is dropped
		requestID := atomic.AddUint64(&t.nextRequestID, 1)

		respCh := make(chan responseResult, 1)
		connection.requestChans.Store(requestID, respCh)
		defer connection.requestChans.Delete(requestID)

		// Lock the connection only for writing
		connection.connMu.Lock()
		conn := connection.conn
		if conn == nil {
			connection.connMu.Unlock()
			return nil, fmt.Errorf("connection is closed")
		}
		if timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		err := writeFrame(conn, shardId, requestID, req)
		connection.connMu.Unlock()

		if err != nil {
			return nil, err
		}

		var timeoutCh <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			timeoutCh = timer.C
		}

		select {
		case result := <-respCh:
			return result.data, result.err
		case <-timeoutCh:
			return nil, fmt.Errorf("request timed out")
		}
	}

	// We always try at least once
	maxRetries := t.config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	backoffMs := 50

	for i := 0; i < maxRetries; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("no active connections available")
		}

		data, err := send(conn)
		if err == nil {
			return data, nil
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}

	var index uint64
	if len(t.connections) > 1 {
		index = atomic.AddUint64(&t.nextConnIndex, 1) % uint64(len(t.connections))
	}
	return t.connections[index]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()

	for _, conn := range t.connections {
		// Signal reader goroutine to stop
		close(conn.stopCh)

		conn.connMu.Lock()
		if conn.conn != nil {
			_ = conn.conn.Close()
		}
		conn.connMu.Unlock()
	}

	t.connections = nil
}

// stopped reports whether the connection was closed by the transport
func (c *clientConnection) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// failPending hands err to every request that waits for a response
func (c *clientConnection) failPending(err error) {
	c.requestChans.Range(func(requestID uint64, respCh chan responseResult) bool {
		select {
		case respCh <- responseResult{nil, err}:
		default:
		}
		return true
	})
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	for {
		if c.stopped() {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		shardID, requestID, data, err := readFrame(conn, nil, 0)
		if err != nil {
			if c.stopped() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			Logger.Warningf("Error reading from %s: %v", c.endpoint, err)
			c.failPending(fmt.Errorf("error reading response: %w", err))

			// Try to restore the connection
			if err := c.reconnect(); err != nil {
				Logger.Errorf("Failed to reconnect to %s: %v", c.endpoint, err)
				return
			}
			continue
		}

		respCh, found := c.requestChans.Load(requestID)
		if !found {
			Logger.Warningf("Received response for unknown request ID %d with shard ID %d", requestID, shardID)
			continue
		}
		select {
		case respCh <- responseResult{data, nil}:
		default:
		}
	}
}

// reconnect establishes or restores a connection to the endpoint
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	c.conn = conn
	return nil
}
