package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

// validateInput is the JSON shape the validate command reads: one
// interaction to check against the registered invariants.
type validateInput struct {
	Prompt       string                `json:"prompt"`
	Messages     []domain.Message      `json:"messages,omitempty"`
	Provider     string                `json:"provider"`
	ModelName    string                `json:"model_name"`
	Temperature  float64               `json:"temperature"`
	TopP         float64               `json:"top_p"`
	Context      domain.RequestContext `json:"context"`
	ResponseText string                `json:"response_text"`
	Usage        map[string]int        `json:"usage,omitempty"`
	LatencyMS    int                   `json:"latency_ms"`
}

func newValidateCmd() *cobra.Command {
	var (
		configPath string
		inputPath  string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate one captured interaction from a JSON file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			var reader io.Reader = os.Stdin
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				reader = f
			}

			var in validateInput
			if err := json.NewDecoder(reader).Decode(&in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}

			model, err := domain.NewModelConfig(domain.Provider(in.Provider), in.ModelName, in.Temperature, in.TopP)
			if err != nil {
				return err
			}
			req, err := domain.NewLLMRequest(domain.RequestTypeChat, in.Prompt, in.Messages, model, in.Context)
			if err != nil {
				return err
			}
			resp := domain.NewLLMResponse(req.ID, in.ResponseText, "", in.Usage, in.LatencyMS)
			capture := domain.NewCaptureEvent(req, resp, "")

			results := rt.validator.ValidateCapture(context.Background(), capture)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	cmd.Flags().StringVar(&inputPath, "input", "", "path to a JSON interaction (defaults to stdin)")
	return cmd
}
