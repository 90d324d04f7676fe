package dispatcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/comesano/internal/ai"
	mpkg "github.com/local/comesano/internal/metrics"
	"github.com/local/comesano/internal/nutrition"
)

// FallbackClient calls the primary and, only when it reports HTTP 429,
// the optional secondary. Every other failure propagates unchanged.
type FallbackClient struct {
	primary   Inferrer
	secondary Inferrer
}

func (f *FallbackClient) Primary() Inferrer   { return f.primary }
func (f *FallbackClient) Secondary() Inferrer { return f.secondary }

func (f *FallbackClient) String() string {
	if f.secondary == nil {
		return describe(f.primary)
	}
	return describe(f.primary) + " -> " + describe(f.secondary)
}

func (f *FallbackClient) InferNutrition(ctx context.Context, image []byte, instruction string) (nutrition.Result, error) {
	result, err := f.primary.InferNutrition(ctx, image, instruction)
	if err == nil {
		return result, nil
	}
	if !ai.IsRateLimited(err) || f.secondary == nil {
		return nutrition.Result{}, err
	}

	from, to := describe(f.primary), describe(f.secondary)
	mpkg.IncFallback(from, to)
	log.Warn().
		Str("from", from).
		Str("to", to).
		Err(err).
		Msg("primary provider rate limited - using secondary")

	return f.secondary.InferNutrition(ctx, image, instruction)
}

// describe names an Inferrer for logs and metric labels.
func describe(inf Inferrer) string {
	if s, ok := inf.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", inf)
}
