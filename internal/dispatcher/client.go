package dispatcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/local/comesano/internal/ai"
	"github.com/local/comesano/internal/nutrition"
	"github.com/local/comesano/internal/prompt"
)

// Inferrer turns a photo and an optional instruction into a nutrition result.
type Inferrer interface {
	InferNutrition(ctx context.Context, image []byte, instruction string) (nutrition.Result, error)
}

var errNotUTF8 = errors.New("extracted text is not valid UTF-8")

// Client binds one provider to the nutrition pipeline:
// encode, prompt, call, extract, decode.
type Client struct {
	provider ai.Client
}

func NewClient(provider ai.Client) *Client { return &Client{provider: provider} }

func (c *Client) Provider() ai.Provider { return c.provider.Provider() }

func (c *Client) String() string {
	return fmt.Sprintf("%s/%s", c.provider.Provider(), c.provider.Model())
}

func (c *Client) InferNutrition(ctx context.Context, image []byte, instruction string) (nutrition.Result, error) {
	provider := c.provider.Provider()
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	raw, err := c.provider.AnalyzeImage(ctx, imageBase64, prompt.UserPrompt(instruction))
	if err != nil {
		return nutrition.Result{}, err
	}
	object, err := ExtractJSONObject(raw, provider)
	if err != nil {
		return nutrition.Result{}, err
	}
	if !utf8.ValidString(object) {
		return nutrition.Result{}, ai.NewInvalidPayload(provider, raw, errNotUTF8)
	}
	result, err := nutrition.Decode([]byte(object))
	if err != nil {
		return nutrition.Result{}, ai.NewInvalidPayload(provider, raw, err)
	}
	return result, nil
}
