package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mobcity/internal/cli"
	"mobcity/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	client := cli.NewClient(cfg.APIBaseURL, cfg.OpsToken)

	root := &cobra.Command{
		Use:          "mobctl",
		Short:        "Operator tool for the city economy service",
		SilenceUsage: true,
	}

	root.AddCommand(
		newEventsCmd(client),
		newCasinoCmd(client),
		newSweepCmd(client),
		newNetWorthCmd(client),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newEventsCmd(client *cli.Client) *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Manage betting events",
	}

	create := &cobra.Command{
		Use:   "create <title> <end-time> <option>...",
		Short: "Open a betting event (end-time RFC3339, at least two options)",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			endTime, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("invalid end time: %w", err)
			}
			return run(cmd, func(ctx context.Context) (map[string]any, error) {
				return client.CreateEvent(ctx, args[0], endTime, args[2:])
			})
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <event-id>",
		Short: "Close an open event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context) (map[string]any, error) {
				return client.CloseEvent(ctx, id)
			})
		},
	}

	settle := &cobra.Command{
		Use:   "settle <event-id> <winning-option-id>",
		Short: "Settle an event and pay out the pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			optionID, err := parseID(args[1], "option id")
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context) (map[string]any, error) {
				return client.SettleEvent(ctx, id, optionID)
			})
		},
	}

	events.AddCommand(create, closeCmd, settle)
	return events
}

func newCasinoCmd(client *cli.Client) *cobra.Command {
	casino := &cobra.Command{
		Use:   "casino",
		Short: "Manage casino games",
	}

	setEnabled := func(enabled bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (map[string]any, error) {
				return client.SetGameEnabled(ctx, args[0], enabled)
			})
		}
	}

	casino.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List games",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, client.ListGames)
			},
		},
		&cobra.Command{
			Use:   "enable <game-code>",
			Short: "Enable a game",
			Args:  cobra.ExactArgs(1),
			RunE:  setEnabled(true),
		},
		&cobra.Command{
			Use:   "disable <game-code>",
			Short: "Disable a game (wagers fail closed)",
			Args:  cobra.ExactArgs(1),
			RunE:  setEnabled(false),
		},
	)
	return casino
}

func newSweepCmd(client *cli.Client) *cobra.Command {
	names := []string{"interest", "delinquency", "payroll", "company-income", "asset-income"}
	return &cobra.Command{
		Use:       "sweep <name>",
		Short:     "Run one sweep now (" + strings.Join(names, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (map[string]any, error) {
				return client.RunSweep(ctx, args[0])
			})
		},
	}
}

func newNetWorthCmd(client *cli.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "networth <user-id>",
		Short: "Report a player's net worth",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context) (map[string]any, error) {
				return client.NetWorth(ctx, args[0])
			})
		},
	}
}

func run(cmd *cobra.Command, fn func(context.Context) (map[string]any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := fn(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseID(s, label string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", label)
	}
	return v, nil
}
