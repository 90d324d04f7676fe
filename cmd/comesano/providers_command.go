package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/local/comesano/internal/dispatcher"
	"github.com/local/comesano/internal/statuscheck"
)

var errNoKeys = errors.New("no provider API keys configured")

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Check provider credentials and show the active inference chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ctx.cfg.Providers
			checker := statuscheck.New(statuscheck.Options{
				OpenAIKey:     p.OpenAI.APIKey,
				GeminiKey:     p.Gemini.APIKey,
				OpenAIBaseURL: p.OpenAI.BaseURL,
				GeminiBaseURL: p.Gemini.BaseURL,
				Primary:       p.Primary,
				Inference:     dispatcher.Describe(ctx.newClient(p)),
			})
			if err := writeJSON(cmd.OutOrStdout(), checker.Summary(cmd.Context())); err != nil {
				return err
			}
			if p.OpenAI.APIKey == "" && p.Gemini.APIKey == "" {
				return errNoKeys
			}
			return nil
		},
	}
}
