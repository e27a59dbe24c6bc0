package util

import (
	"fmt"
	"github.com/fatih/color"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/serializer"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/ValentinKolb/dProof/rpc/transport/http"
	"github.com/ValentinKolb/dProof/rpc/transport/tcp"
	"github.com/ValentinKolb/dProof/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var (
	Green  = color.New(color.FgGreen).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the dProof server (host:port, a socket path for unix or a url for http). Multiple endpoints can be specified as a comma-separated list, requests are balanced round robin"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (only for TCPConf)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, only for TCPConf)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time for the transport (in seconds, only for TCPConf)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dproof")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			RetryCount:             viper.GetInt("transport-retries"),
			Endpoints:              splitEndpoints(viper.GetString("transport-endpoints")),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}

	return conf
}

// splitEndpoints splits a comma-separated endpoint list and drops empty entries
func splitEndpoints(endpoints string) []string {
	var out []string
	for _, endpoint := range strings.Split(endpoints, ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			out = append(out, endpoint)
		}
	}
	return out
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetTransport creates transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetShardID retrieves the configured registry shard ID
func GetShardID() uint64 {
	return viper.GetUint64("shard")
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
