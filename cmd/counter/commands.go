package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ValentinKolb/dLV/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	addCmd = &cobra.Command{
		Use:   "add [name] [amount]",
		Short: "Adds amount to a counter and waits until the update is confirmed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount must be a number: %w", err)
			}
			return withTimeout(func(ctx context.Context) (client.CounterState, error) {
				return rpcCounter.Add(ctx, args[0], amount)
			})
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [name]",
		Short: "Prints the confirmed value of a counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTimeout(func(ctx context.Context) (client.CounterState, error) {
				return rpcCounter.Get(ctx, args[0])
			})
		},
	}
	syncCmd = &cobra.Command{
		Use:   "sync [name]",
		Short: "Synchronizes a counter with the primary cluster and prints the fresh value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTimeout(func(ctx context.Context) (client.CounterState, error) {
				return rpcCounter.Sync(ctx, args[0])
			})
		},
	}
)

// withTimeout runs op bounded by the client timeout and prints the resulting state
func withTimeout(op func(ctx context.Context) (client.CounterState, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(max(1, viper.GetInt("timeout")))*time.Second)
	defer cancel()

	state, err := op(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("value:   %d\n", state.Value)
	fmt.Printf("version: %d\n", state.Version)
	return nil
}
