package base

import (
	"errors"
	"net"
	"testing"

	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketConnector(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	t.Run("without upgrade", func(t *testing.T) {
		c := SocketConnector{Network: "tcp"}
		assert.Equal(t, "tcp", c.GetName())

		conn, err := c.Connect(listener.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		assert.NoError(t, c.UpgradeConnection(conn, common.ClientConfig{}))
	})

	t.Run("with upgrade", func(t *testing.T) {
		var upgraded net.Conn
		c := SocketConnector{Network: "tcp", Upgrade: func(conn net.Conn, _ common.ClientConfig) error {
			upgraded = conn
			return errors.New("rejected")
		}}

		conn, err := c.Connect(listener.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		assert.EqualError(t, c.UpgradeConnection(conn, common.ClientConfig{}), "rejected")
		assert.Same(t, conn, upgraded)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		_, err := SocketConnector{Network: "unix"}.Connect(t.TempDir() + "/missing.sock")
		assert.Error(t, err)
	})
}
