package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options shared by every subcommand
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "persuasion-gateway",
		Short: "SMTP relay that annotates persuasion cues in inbound mail",
		Long: `persuasion-gateway sits in front of the mail server. Every inbound message is
scored against a catalogue of persuasion rules (urgency, fear, authority, trust,
reward), tagged with a risk level and a reader-facing banner, then relayed
downstream. Messages are never blocked.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default: ./persuasion-gateway.yaml or /etc/persuasion-gateway/)")

	root.AddCommand(
		newServeCmd(opts),
		newEvaluateCmd(opts),
		newCatalogueCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "persuasion-gateway %s\n", Version)
			fmt.Fprintf(out, "  Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
		},
	}
}
