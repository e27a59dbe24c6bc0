package unix

import (
	"fmt"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/ValentinKolb/dProof/rpc/transport/base"
	"net"
	"os"
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Transport.Endpoint

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %w", err)
	}

	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return upgradeUnixConn(conn, config.Transport.SocketConf)
}

// upgradeUnixConn applies the socket buffer sizes to a unix connection
func upgradeUnixConn(conn net.Conn, socketConf common.SocketConf) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if socketConf.WriteBufferSize > 0 {
		if err := unixConn.SetWriteBuffer(socketConf.WriteBufferSize); err != nil {
			return err
		}
	}
	if socketConf.ReadBufferSize > 0 {
		if err := unixConn.SetReadBuffer(socketConf.ReadBufferSize); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Transport Factory Methods
// --------------------------------------------------------------------------

// NewUnixServerTransport creates a new Unix server transport
func NewUnixServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}

// NewUnixClientTransport creates a new Unix client transport
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(base.SocketConnector{
		Network: "unix",
		Upgrade: func(conn net.Conn, config common.ClientConfig) error {
			return upgradeUnixConn(conn, config.Transport.SocketConf)
		},
	})
}
