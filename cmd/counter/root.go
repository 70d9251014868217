package counter

import (
	"github.com/ValentinKolb/dLV/cmd/util"
	"github.com/ValentinKolb/dLV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcCounter *client.RPCCounter

	// CounterCommands represents the counter command group
	CounterCommands = &cobra.Command{
		Use:               "counter",
		Short:             "Perform operations on replicated counters",
		PersistentPreRunE: setupCounterClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the counter command
	util.SetupRPCClientFlags(CounterCommands)

	// The protocol shard has a different default than the store shard
	CounterCommands.PersistentFlags().Int("shard", 200, util.WrapString("ID of the protocol shard to connect to"))

	// Add subcommands
	CounterCommands.AddCommand(addCmd)
	CounterCommands.AddCommand(getCmd)
	CounterCommands.AddCommand(syncCmd)
	CounterCommands.AddCommand(perfTestCmd)
}

// setupCounterClient initializes the RPC counter client
func setupCounterClient(cmd *cobra.Command, _ []string) error {
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

	rpcCounter, err = client.NewRPCCounter(
		shardId,
		*config,
		t,
		s,
	)

	return err
}
