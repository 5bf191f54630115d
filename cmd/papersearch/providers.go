package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/repository"
)

type paperOutput struct {
	Paper      *repository.PaperRecord `json:"paper"`
	References []domain.Reference      `json:"references"`
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured providers and their breaker state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return printJSON(cmd.OutOrStdout(), a.Engine.Providers())
	},
}

var paperCmd = &cobra.Command{
	Use:   "paper <id>",
	Short: "Print a stored paper and its references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Papers == nil {
			return fmt.Errorf("paper lookup requires database.enabled")
		}

		record, err := a.Papers.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		refs, err := a.Papers.ListReferences(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), paperOutput{Paper: record, References: refs})
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(paperCmd)
}
