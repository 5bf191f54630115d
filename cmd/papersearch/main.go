// Package main is the entry point for the papersearch CLI. Each engine
// operation is a subcommand that prints its result as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-engine/internal/app"
	"github.com/helixir/paper-search-engine/internal/config"
	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the papersearch CLI.
var rootCmd = &cobra.Command{
	Use:   "papersearch",
	Short: "Federated academic paper search",
	Long: `papersearch queries Semantic Scholar, OpenAlex, Scopus, PubMed, bioRxiv and
arXiv in parallel, merges duplicate records and ranks the result.

The search command only reads. The ingest and batch commands also store the
ranked papers and require database.enabled in the configuration.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml, ./config/config.yaml or /etc/paper-search-engine/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override the configured log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config. Logs go to stderr
// so stdout carries only JSON.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Logging.Output = "stderr"
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// buildApp assembles the engine for a single command invocation.
func buildApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(app.LoggingConfig(cfg.Logging)).
		With().Str("component", "cli").Logger()
	return app.New(ctx, cfg, logger, nil)
}

// addSearchFlags registers the options shared by every search command.
func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("limit", domain.DefaultResultCount, "number of ranked papers to return")
	cmd.Flags().Int("year-from", 0, "earliest publication year (inclusive)")
	cmd.Flags().Int("year-to", 0, "latest publication year (inclusive)")
	cmd.Flags().Bool("open-access", false, "only return open-access works")
	cmd.Flags().Bool("fast", false, "use the short provider timeout")
	cmd.Flags().StringSlice("sources", nil, "providers to query (default: all)")
}

// searchOptions reads the flags registered by addSearchFlags.
func searchOptions(cmd *cobra.Command) (domain.SearchOptions, error) {
	var opts domain.SearchOptions
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.YearFrom, _ = cmd.Flags().GetInt("year-from")
	opts.YearTo, _ = cmd.Flags().GetInt("year-to")
	opts.OpenAccessOnly, _ = cmd.Flags().GetBool("open-access")
	opts.FastMode, _ = cmd.Flags().GetBool("fast")

	sources, _ := cmd.Flags().GetStringSlice("sources")
	for _, s := range sources {
		src := domain.SourceType(s)
		if !src.IsKnown() {
			return opts, fmt.Errorf("unknown source %q", s)
		}
		opts.Sources = append(opts.Sources, src)
	}

	if opts.YearFrom > 0 && opts.YearTo > 0 && opts.YearFrom > opts.YearTo {
		return opts, fmt.Errorf("--year-from %d is after --year-to %d", opts.YearFrom, opts.YearTo)
	}
	return opts, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
