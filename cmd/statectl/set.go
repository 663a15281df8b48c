package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tailored-agentic-units/statecontext/state"
)

func newSetCmd(flags *globalFlags) *cobra.Command {
	var contextID string

	cmd := &cobra.Command{
		Use:   "set ADDRESS=HEX...",
		Short: "Write addresses in a context",
		Long: `Write hex-encoded values to addresses in a context, in argument order, and
print each address the context manager reports as written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if contextID == "" {
				return errors.New("--context is required")
			}

			entries, err := parseEntries(args)
			if err != nil {
				return err
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

			written, err := c.Accessor(contextID).Set(cmd.Context(), entries)
			if err != nil {
				return err
			}

			for _, addr := range written {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			if len(written) < len(entries) {
				slog.Warn("partial write", slog.Int("requested", len(entries)), slog.Int("written", len(written)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&contextID, "context", "", "Context ID to write to (required)")
	return cmd
}

func parseEntries(args []string) ([]state.Entry, error) {
	entries := make([]state.Entry, 0, len(args))
	for _, arg := range args {
		addr, value, ok := strings.Cut(arg, "=")
		if !ok || addr == "" {
			return nil, fmt.Errorf("invalid entry %q: want ADDRESS=HEX", arg)
		}
		data, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid entry %q: %w", arg, err)
		}
		entries = append(entries, state.Entry{Address: addr, Data: data})
	}
	return entries, nil
}
