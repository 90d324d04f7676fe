package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/local/comesano/internal/ai"
	"github.com/local/comesano/internal/countdown"
	"github.com/local/comesano/internal/dispatcher"
	"github.com/local/comesano/internal/imagecheck"
	"github.com/local/comesano/internal/nutrition"
	"github.com/local/comesano/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type analyzeOptions struct {
	instruction string
	provider    string
	retries     int
	format      string
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze a meal photo and print the nutrition estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, ctx, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.instruction, "instruction", "i", "", "Extra instruction for the model")
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "Primary provider (openai or gemini); defaults to PRIMARY_PROVIDER")
	cmd.Flags().IntVar(&opts.retries, "wait", 0, "On a rate limit, wait for the countdown and retry up to N times")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "Output format (json or text)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, ctx *commandContext, path string, opts analyzeOptions) error {
	if opts.format != "json" && opts.format != "text" {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	providers := ctx.cfg.Providers
	if opts.provider != "" {
		p, err := ai.ParseProvider(opts.provider)
		if err != nil {
			return err
		}
		providers.Primary = string(p)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	img, info, err := imagecheck.New().Normalize(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Analizando %s (%s)...\n", path, info.Description)

	expired := make(chan struct{}, 1)
	stderr := cmd.ErrOrStderr()
	cdOpts := []countdown.Option{countdown.WithOnChange(func(s countdown.Snapshot) {
		switch s.State {
		case countdown.Counting:
			fmt.Fprintf(stderr, "Reintento disponible en %ds\n", s.Remaining)
		case countdown.Expired:
			select {
			case expired <- struct{}{}:
			default:
			}
		}
	})}
	if ctx.newTicker != nil {
		cdOpts = append(cdOpts, countdown.WithTicker(ctx.newTicker))
	}

	client := ctx.newClient(providers)
	analyzer := session.NewAnalyzer(client, countdown.New(cdOpts...))
	defer analyzer.Close()

	result, err := analyzer.Analyze(cmd.Context(), img, opts.instruction)
	for attempt := 0; err != nil && attempt < opts.retries && ai.IsRateLimited(err); attempt++ {
		if analyzer.Countdown().State != countdown.Counting {
			break
		}
		select {
		case <-expired:
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
		fmt.Fprintf(stderr, "Reintentando con %s...\n", dispatcher.Describe(client))
		result, err = analyzer.Retry(cmd.Context())
	}
	if err != nil {
		fmt.Fprintln(stderr, session.UserMessage(err))
		if s := analyzer.Countdown(); s.State == countdown.Counting {
			return fmt.Errorf("rate limited, retry in %ds: %w", s.Remaining, err)
		}
		return err
	}

	if opts.format == "text" {
		return writeText(cmd.OutOrStdout(), result)
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeText(w io.Writer, r nutrition.Result) error {
	var b strings.Builder
	if len(r.FoodItems) == 0 {
		b.WriteString("No se reconocieron alimentos.\n")
	}
	for _, item := range r.FoodItems {
		n := item.Nutrition
		fmt.Fprintf(&b, "%s", item.Name)
		if item.ServingDescription != "" {
			fmt.Fprintf(&b, " (%s)", item.ServingDescription)
		}
		fmt.Fprintf(&b, ": %.0f kcal, proteína %.1fg, carbohidratos %.1fg, grasa %.1fg\n",
			n.Calories, n.ProteinGrams, n.CarbsGrams, n.FatGrams)
	}
	if len(r.FoodItems) > 1 {
		t := r.TotalNutrition()
		fmt.Fprintf(&b, "Total: %.0f kcal, proteína %.1fg, carbohidratos %.1fg, grasa %.1fg\n",
			t.Calories, t.ProteinGrams, t.CarbsGrams, t.FatGrams)
	}
	if len(r.ShoppingList) > 0 {
		b.WriteString("Lista de compras:\n")
		for _, s := range r.ShoppingList {
			fmt.Fprintf(&b, "- %s: %g %s\n", s.Name, s.Quantity, s.Unit)
		}
	}
	if r.Notes != "" {
		fmt.Fprintf(&b, "Notas: %s\n", r.Notes)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
