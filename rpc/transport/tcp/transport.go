package tcp

import (
	"fmt"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/ValentinKolb/dProof/rpc/transport/base"
	"net"
	"time"
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}

	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return upgradeTCPConn(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}

// upgradeTCPConn applies the socket and tcp options to a connection
// (used by the client and the server side)
func upgradeTCPConn(conn net.Conn, socketConf common.SocketConf, tcpConf common.TCPConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm if configured
	if err := tcpConn.SetNoDelay(tcpConf.TCPNoDelay); err != nil {
		return err
	}

	if socketConf.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(socketConf.WriteBufferSize); err != nil {
			return err
		}
	}

	if socketConf.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(socketConf.ReadBufferSize); err != nil {
			return err
		}
	}

	if tcpConf.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		keepAlivePeriod := time.Duration(tcpConf.TCPKeepAliveSec) * time.Second
		if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
	}

	// 0 keeps the os default (linger in the background)
	if tcpConf.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(tcpConf.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Transport Factory Methods
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(base.SocketConnector{
		Network: "tcp",
		Upgrade: func(conn net.Conn, config common.ClientConfig) error {
			return upgradeTCPConn(conn, config.Transport.SocketConf, config.Transport.TCPConf)
		},
	})
}
