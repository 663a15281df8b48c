package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newGetCmd(flags *globalFlags) *cobra.Command {
	var contextID string

	cmd := &cobra.Command{
		Use:   "get ADDRESS...",
		Short: "Read addresses from a context",
		Long: `Read addresses from a context and print each one that holds a value as
ADDRESS<TAB>HEX, in argument order. Addresses without a value are omitted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if contextID == "" {
				return errors.New("--context is required")
			}

			c, err := flags.newClient()
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					slog.Warn("failed to close client", slog.String("error", err.Error()))
				}
			}()

			values, err := c.Accessor(contextID).Get(cmd.Context(), args)
			if err != nil {
				return err
			}

			printed := make(map[string]bool, len(values))
			for _, addr := range args {
				data, ok := values[addr]
				if !ok || printed[addr] {
					continue
				}
				printed[addr] = true
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", addr, hex.EncodeToString(data))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&contextID, "context", "", "Context ID to read from (required)")
	return cmd
}
