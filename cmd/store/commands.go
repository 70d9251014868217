package store

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Prints the value and ETag of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, etag, found, err := rpcStore.ReadState(args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("<not found>")
				return nil
			}
			fmt.Printf("etag:  %s\n", etag)
			fmt.Printf("value: %q\n", value)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [key] [etag]",
		Short: "Deletes a record if its ETag matches",
		Long:  "Deletes a record if its ETag matches. The current ETag can be read with the get command.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.ClearState(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints metadata about the store shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.GetInfo()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)
