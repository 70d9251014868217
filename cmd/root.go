package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dLV/cmd/counter"
	"github.com/ValentinKolb/dLV/cmd/serve"
	"github.com/ValentinKolb/dLV/cmd/store"
	"github.com/ValentinKolb/dLV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dlv",
		Short: "multi-cluster virtual actors with log-view replication",
		Long: fmt.Sprintf(`dLV (v%s)

Virtual actors (counters) replicated across clusters with a primary-based
log-view protocol. The confirmed state of every actor lives in a shared
record store, optionally replicated with RAFT.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dLV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dLV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(store.StoreCommands)
	RootCmd.AddCommand(counter.CounterCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary, msgpack)"))
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
