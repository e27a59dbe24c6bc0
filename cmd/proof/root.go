package proof

import (
	"github.com/ValentinKolb/dProof/cmd/util"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore store.IStore

	// ProofCommands represents the registry client command group
	ProofCommands = &cobra.Command{
		Use:               "proof",
		Short:             "Register and verify documents",
		PersistentPreRunE: setupProofClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the proof command
	util.SetupRPCClientFlags(ProofCommands)

	ProofCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the registry shard to connect to"))

	// Add subcommands
	ProofCommands.AddCommand(registerCmd)
	ProofCommands.AddCommand(verifyCmd)
	ProofCommands.AddCommand(getCmd)
	ProofCommands.AddCommand(statsCmd)
	ProofCommands.AddCommand(dbInfoCmd)
	ProofCommands.AddCommand(perfTestCmd)
}

// setupProofClient initializes the RPC registry client
func setupProofClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	shardId := util.GetShardID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCStore(
		shardId,
		*config,
		t,
		s,
	)

	return err
}
