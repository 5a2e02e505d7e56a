package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the persisted queue defaults",
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show a queue default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				value, err := app.Services.Queue.GetConfig(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s = %s\n", args[0], value)
				return nil
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a queue default (max_retries, backoff_base, default_timeout_seconds)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if _, err := strconv.Atoi(value); err != nil {
				return fmt.Errorf("invalid value for %s: %q", key, value)
			}
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				if err := app.Services.Queue.SetConfig(ctx, key, value); err != nil {
					return err
				}
				fmt.Printf("%s = %s\n", key, value)
				return nil
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show all queue defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				all, err := app.Services.Queue.AllConfig(ctx)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(all))
				for key := range all {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Printf("%s = %s\n", key, all[key])
				}
				return nil
			})
		},
	}

	configCmd.AddCommand(getCmd, setCmd, showCmd)
	return configCmd
}
