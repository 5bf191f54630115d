package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [queries...]",
	Short: "Search and store several queries in sequence",
	Long: `Batch runs ingest for each query in order, pausing between queries. The
pause grows once a provider reports a rate limit. Queries come from the
arguments or, with --file, one per line from a file ("-" reads stdin).
Blank lines and lines starting with # are skipped.`,
	RunE: runBatch,
}

func init() {
	addSearchFlags(batchCmd)
	batchCmd.Flags().String("file", "", "read queries from a file, one per line")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	opts, err := searchOptions(cmd)
	if err != nil {
		return err
	}

	queries := args
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		fromFile, err := readQueryFile(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		queries = append(queries, fromFile...)
	}
	if len(queries) == 0 {
		return fmt.Errorf("provide one or more queries as arguments or with --file")
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Engine.BatchSearchAndIngest(ctx, queries, opts)
	// Partial results are printed even when the batch was interrupted.
	if printErr := printJSON(cmd.OutOrStdout(), results); printErr != nil && err == nil {
		err = printErr
	}
	return err
}

func readQueryFile(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open query file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return parseQueries(r)
}

func parseQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return queries, nil
}
