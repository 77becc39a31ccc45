package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/fleetdash/internal/app"
	"github.com/five82/fleetdash/internal/config"
	"github.com/five82/fleetdash/internal/entity"
	"github.com/five82/fleetdash/internal/logtail"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fleetdash: %v\n", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	configPath  string
	prefsPath   string
	pollSeconds int
	verbose     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "fleetdash",
		Short:         "Fleet operations dashboard with offline-tolerant sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), app.Options{
				ConfigPath: flags.configPath,
				PrefsPath:  flags.prefsPath,
				PollEvery:  max(flags.pollSeconds, 0),
			})
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/fleetdash/config.toml)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log sync activity to stderr")
	root.Flags().StringVar(&flags.prefsPath, "prefs", "", "preferences file (default ~/.config/fleetdash/prefs.toml)")
	root.Flags().IntVar(&flags.pollSeconds, "poll", 0, "refresh interval in seconds (defaults to the configured interval)")

	root.AddCommand(newSummaryCmd(flags), newSnapshotCmd(flags), newLogCmd(flags))
	return root
}

func newSummaryCmd(flags *rootFlags) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "summary <collection>",
		Short: "Print counts for one collection and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()
			return app.PrintSummary(cmd.Context(), rt, kind, scope, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "parent id for nested collections")
	return cmd
}

func newSnapshotCmd(flags *rootFlags) *cobra.Command {
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage fallback snapshots",
	}

	var scope string
	clearCmd := &cobra.Command{
		Use:   "clear <collection>",
		Short: "Delete the fallback snapshot of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := app.ClearSnapshot(cmd.Context(), rt, kind, scope); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s snapshot\n", kind)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&scope, "scope", "", "parent id for nested collections")
	snapshot.AddCommand(clearCmd)
	return snapshot
}

func newLogCmd(flags *rootFlags) *cobra.Command {
	var (
		lines     int
		component string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the tail of the sync log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			entries, err := logtail.Read(cfg.LogFile, lines, component)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show (0 for all)")
	cmd.Flags().StringVar(&component, "component", "", "only show lines from one component (cache, fallback, poller)")
	return cmd
}

func parseKind(raw string) (entity.Kind, error) {
	kind, ok := entity.ParseKind(raw)
	if !ok {
		return "", fmt.Errorf("unknown collection %q", raw)
	}
	return kind, nil
}

func buildRuntime(cmd *cobra.Command, flags *rootFlags) (*app.Runtime, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	out := io.Discard
	if flags.verbose {
		out = cmd.ErrOrStderr()
	}
	return app.Build(cmd.Context(), cfg, log.New(out, "", log.LstdFlags))
}
