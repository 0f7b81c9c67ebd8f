package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stoik/persuasion-gateway/internal/catalogue"
	"github.com/stoik/persuasion-gateway/internal/config"
	"github.com/stoik/persuasion-gateway/internal/domain"
)

func newCatalogueCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "Inspect rule catalogues",
	}
	cmd.AddCommand(newCatalogueCheckCmd(opts), newCatalogueDumpCmd())
	return cmd
}

func newCatalogueCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate a rule catalogue",
		Long: `Load and validate a rule catalogue. Without a path the configured catalogue
is checked (catalogue.path, or the built-in one). The configured threshold
table is validated too and printed. Exits non-zero on the first problem found.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			path := cfg.Catalogue.Path
			if len(args) == 1 {
				path = args[0]
			}

			// the same detector serve would build, so both accept the same catalogues
			detector, err := buildDetector(cfg, path)
			if err != nil {
				return err
			}
			cat := detector.Catalogue()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rules OK\n", catalogueSource(path), cat.Len())
			for _, tactic := range domain.Tactics {
				var ids []string
				for _, r := range cat.Rules() {
					if r.Tactic == tactic {
						ids = append(ids, r.ID)
					}
				}
				if len(ids) > 0 {
					fmt.Fprintf(out, "  %-10s %s\n", tactic.Label(), strings.Join(ids, ", "))
				}
			}

			th := detector.Thresholds()
			fmt.Fprintln(out, "Thresholds:")
			for _, level := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
				fmt.Fprintf(out, "  %-10s score >= %d\n", level, th.LowerBound(level))
			}
			return nil
		},
	}
}

func newCatalogueDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the built-in catalogue as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(catalogue.DefaultDocument())
			return err
		},
	}
}
