package dispatcher

import (
	"context"
	"strings"

	"github.com/local/comesano/internal/ai"
	"github.com/local/comesano/internal/config"
	"github.com/local/comesano/internal/nutrition"
)

// UnconfiguredNote is returned by EmptyClient when no provider has a key.
const UnconfiguredNote = "Configura OPENAI_API_KEY o GEMINI_API_KEY para analizar fotos."

// Credentials holds the optional API key of each provider.
type Credentials struct {
	OpenAI string
	Gemini string
}

func (c Credentials) key(p ai.Provider) string {
	if p == ai.Gemini {
		return strings.TrimSpace(c.Gemini)
	}
	return strings.TrimSpace(c.OpenAI)
}

// Models names the model used per provider; blank means the default.
type Models struct {
	OpenAI string
	Gemini string
}

func (m Models) model(p ai.Provider) string {
	if p == ai.Gemini {
		return m.Gemini
	}
	return m.OpenAI
}

// ProviderOptions carries per-provider client options (base URL, timeout).
type ProviderOptions map[ai.Provider][]ai.Option

// MakeForProvider builds the nutrition client of a single provider.
func MakeForProvider(provider ai.Provider, credential, model string, opts ...ai.Option) *Client {
	if provider == ai.Gemini {
		return MakeGemini(credential, model, opts...)
	}
	return MakeOpenAI(credential, model, opts...)
}

func MakeOpenAI(apiKey, model string, opts ...ai.Option) *Client {
	return NewClient(ai.NewOpenAIClient(apiKey, model, opts...))
}

func MakeGemini(apiKey, model string, opts ...ai.Option) *Client {
	return NewClient(ai.NewGeminiClient(apiKey, model, opts...))
}

// MakeWithFallback composes primary with an optional secondary (nil allowed).
func MakeWithFallback(primary, secondary Inferrer) *FallbackClient {
	return &FallbackClient{primary: primary, secondary: secondary}
}

// Select applies the caller-side policy: the chosen provider leads and the
// other one backs it up on rate limits; a single usable provider runs alone;
// with no keys at all an EmptyClient keeps callers in a valid state.
func Select(choice ai.Provider, creds Credentials, models Models, opts ProviderOptions) Inferrer {
	if choice != ai.Gemini {
		choice = ai.OpenAI
	}
	other := choice.Other()
	chosenKey, otherKey := creds.key(choice), creds.key(other)

	switch {
	case chosenKey != "" && otherKey != "":
		return MakeWithFallback(
			MakeForProvider(choice, chosenKey, models.model(choice), opts[choice]...),
			MakeForProvider(other, otherKey, models.model(other), opts[other]...),
		)
	case chosenKey != "":
		return MakeWithFallback(MakeForProvider(choice, chosenKey, models.model(choice), opts[choice]...), nil)
	case otherKey != "":
		return MakeForProvider(other, otherKey, models.model(other), opts[other]...)
	}
	return EmptyClient{Notes: UnconfiguredNote}
}

// FromConfig runs Select over the providers section of the configuration.
// An unknown primary name falls back to OpenAI.
func FromConfig(cfg config.ProvidersConfig) Inferrer {
	choice, err := ai.ParseProvider(cfg.Primary)
	if err != nil {
		choice = ai.OpenAI
	}
	opts := ProviderOptions{
		ai.OpenAI: {ai.WithBaseURL(cfg.OpenAI.BaseURL), ai.WithTimeout(cfg.OpenAI.Timeout)},
		ai.Gemini: {ai.WithBaseURL(cfg.Gemini.BaseURL), ai.WithTimeout(cfg.Gemini.Timeout)},
	}
	return Select(choice,
		Credentials{OpenAI: cfg.OpenAI.APIKey, Gemini: cfg.Gemini.APIKey},
		Models{OpenAI: cfg.OpenAI.Model, Gemini: cfg.Gemini.Model},
		opts)
}

// Describe names an Inferrer chain, e.g. "openai/gpt-4.1-mini -> gemini/gemini-2.0-flash".
func Describe(inf Inferrer) string { return describe(inf) }

// EmptyClient always succeeds with an empty result and a fixed note.
type EmptyClient struct {
	Notes string
}

func (e EmptyClient) String() string { return "unconfigured" }

func (e EmptyClient) InferNutrition(context.Context, []byte, string) (nutrition.Result, error) {
	return nutrition.Empty(e.Notes), nil
}
