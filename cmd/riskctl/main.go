// Command riskctl is the operator CLI for the risk gate. It talks to the
// shared Redis store directly, so it works whether or not a gate is running.
//
//	riskctl blacklist add fraud@example.com --reason chargeback --days 30 --by alice
//	riskctl review list --limit 20
//	riskctl review decide <id> reject --notes "stolen card" --by bob
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tourbook/risk-gate/internal/blacklist"
	"tourbook/risk-gate/internal/config"
	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/review"
	"tourbook/risk-gate/internal/store"
)

var Version = "dev"

// app carries the connection opened by the root command's pre-run hook.
type app struct {
	jsonOut   bool
	rs        *store.RedisStore
	blacklist *blacklist.Service
	reviews   *review.Service
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "riskctl",
		Short:         "riskctl - blacklist and manual review operations for the risk gate",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.rs != nil {
				_ = a.rs.Close()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&a.jsonOut, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(blacklistCmd(a))
	rootCmd.AddCommand(reviewCmd(a))
	return rootCmd
}

func (a *app) connect(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != config.BackendRedis {
		return fmt.Errorf("riskctl needs STORE_BACKEND=%s, got %q", config.BackendRedis, cfg.StoreBackend)
	}

	// Operator commands log to stderr so stdout stays parseable.
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	ctx := logging.WithLogger(cmd.Context(), logger)
	cmd.SetContext(ctx)

	rs, err := store.Connect(ctx, store.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		// Operator commands scan whole sets.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	a.rs = rs
	a.blacklist = blacklist.New(rs)
	a.reviews = review.New(rs, rs)
	return nil
}

// emit prints v as indented JSON when --json is set, otherwise calls text.
func (a *app) emit(w io.Writer, v any, text func(io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
