package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search every provider and print the ranked papers",
	Long: `Search expands the query, fans it out to the enabled providers, merges
duplicate records and prints the ranked result together with a per-provider
outcome. Nothing is stored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <query>",
	Short: "Search and store the ranked papers",
	Long: `Ingest runs a search and stores every ranked paper, downloading and
chunking open-access full text where available. Papers already stored are
not duplicated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	addSearchFlags(searchCmd)
	addSearchFlags(ingestCmd)

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts, err := searchOptions(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Engine.Run(ctx, strings.Join(args, " "), opts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runIngest(cmd *cobra.Command, args []string) error {
	opts, err := searchOptions(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Engine.SearchAndIngest(ctx, strings.Join(args, " "), opts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
