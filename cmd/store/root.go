package store

import (
	"github.com/ValentinKolb/dLV/cmd/util"
	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore store.IStore

	// StoreCommands represents the record store command group
	StoreCommands = &cobra.Command{
		Use:               "store",
		Short:             "Inspect and manage the records of a store shard",
		PersistentPreRunE: setupStoreClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the store command
	util.SetupRPCClientFlags(StoreCommands)

	StoreCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the shard to connect to"))

	// Add subcommands
	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(clearCmd)
	StoreCommands.AddCommand(infoCmd)
}

// setupStoreClient initializes the RPC store client
func setupStoreClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()
	shardId := util.GetShardID()

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
