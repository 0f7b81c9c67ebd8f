package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stoik/persuasion-gateway/internal/application"
	"github.com/stoik/persuasion-gateway/internal/config"
	"github.com/stoik/persuasion-gateway/internal/domain"
	"github.com/stoik/persuasion-gateway/internal/domain/signals"
)

// evaluateReport is what evaluate prints
type evaluateReport struct {
	Verdict domain.Verdict  `json:"verdict"`
	Signals []domain.Signal `json:"signals"`
	Banner  string          `json:"banner"`
	Skipped bool            `json:"skipped,omitempty"`
}

func newEvaluateCmd(opts *options) *cobra.Command {
	var (
		cataloguePath string
		printMessage  bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <file.eml|->",
		Short: "Score one message and print the verdict",
		Long: `Read an RFC 5322 message from a file, or from stdin when the argument is "-",
and print its verdict, signals and banner as JSON. Nothing is relayed or archived.

With --message the annotated message is printed instead, exactly as serve would
relay it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readMessage(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			detector, err := buildDetector(cfg, cataloguePath)
			if err != nil {
				return err
			}
			policy, err := cfg.Policy()
			if err != nil {
				return err
			}

			service := application.NewGatewayService(detector, nil, nil, signals.DefaultStrategies(), nil, nil, policy)
			annotated := service.Annotate(cmd.Context(), domain.NewEnvelope("", nil), raw)

			out := cmd.OutOrStdout()
			if printMessage {
				_, err := out.Write(annotated.Raw)
				return err
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(evaluateReport{
				Verdict: annotated.Verdict,
				Signals: annotated.Signals,
				Banner:  annotated.Banner,
				Skipped: annotated.Skipped,
			})
		},
	}

	cmd.Flags().StringVar(&cataloguePath, "catalogue", "", "Rule catalogue to use instead of the configured one")
	cmd.Flags().BoolVar(&printMessage, "message", false, "Print the annotated message instead of the JSON report")
	return cmd
}

func readMessage(stdin io.Reader, arg string) ([]byte, error) {
	if arg == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return raw, nil
}
