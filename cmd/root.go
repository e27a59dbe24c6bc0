package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dProof/cmd/proof"
	"github.com/ValentinKolb/dProof/cmd/serve"
	"github.com/ValentinKolb/dProof/cmd/util"
	"github.com/ValentinKolb/dProof/rpc/serializer"
	"github.com/spf13/cobra"
	"os"
	"strings"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dproof",
		Short: "content-addressed document registry",
		Long: fmt.Sprintf(`dProof (v%s)

A registry that records the first registration of a document hash
together with its owner, a description and a ledger timestamp.
Registries are served locally or replicated with RAFT.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dProof",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dProof v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(proof.ProofCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString(fmt.Sprintf("serializer to use (%s)", strings.Join(serializer.Names(), ", "))))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
