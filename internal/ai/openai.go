package ai

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/local/comesano/internal/prompt"
)

const (
    DefaultOpenAIModel   = "gpt-4.1-mini"
    defaultOpenAIBaseURL = "https://api.openai.com"
    openAIResponsesPath  = "/v1/responses"
)

// OpenAIClient talks to the Responses API with bearer authentication.
type OpenAIClient struct {
    http    *http.Client
    apiKey  string
    model   string
    baseURL string
}

func NewOpenAIClient(apiKey, model string, opts ...Option) *OpenAIClient {
    o := buildOptions(defaultOpenAIBaseURL, opts)
    if model = strings.TrimSpace(model); model == "" { model = DefaultOpenAIModel }
    return &OpenAIClient{http: o.httpClient, apiKey: strings.TrimSpace(apiKey), model: model, baseURL: o.baseURL}
}

func (c *OpenAIClient) Provider() Provider { return OpenAI }
func (c *OpenAIClient) Model() string      { return c.model }

type openAIInputText struct {
    Type string `json:"type"`
    Text string `json:"text"`
}

type openAIInputImage struct {
    Type     string `json:"type"`
    ImageURL string `json:"image_url"`
}

type openAIMessage struct {
    Role    string `json:"role"`
    Content []any  `json:"content"`
}

type openAIRequest struct {
    Model string          `json:"model"`
    Input []openAIMessage `json:"input"`
}

type openAIEnvelope struct {
    OutputText string `json:"output_text"`
    Output     []struct {
        Content []struct {
            Text string `json:"text"`
        } `json:"content"`
    } `json:"output"`
}

func (c *OpenAIClient) request(imageBase64, userPrompt string) openAIRequest {
    return openAIRequest{
        Model: c.model,
        Input: []openAIMessage{
            {Role: "system", Content: []any{openAIInputText{Type: "input_text", Text: prompt.SystemInstruction}}},
            {Role: "user", Content: []any{
                openAIInputText{Type: "input_text", Text: userPrompt},
                openAIInputImage{Type: "input_image", ImageURL: "data:image/jpeg;base64," + imageBase64},
            }},
        },
    }
}

func (c *OpenAIClient) AnalyzeImage(ctx context.Context, imageBase64, userPrompt string) (text string, err error) {
    if c.apiKey == "" {
        return "", &MissingAPIKeyError{Provider: OpenAI}
    }
    start := time.Now()
    defer func() { observe(OpenAI, c.model, start, err) }()

    endpoint := c.baseURL + openAIResponsesPath
    body, err := post(ctx, c.http, call{
        provider: OpenAI,
        model:    c.model,
        endpoint: endpoint,
        logURL:   endpoint,
        header:   http.Header{"Authorization": {"Bearer " + c.apiKey}},
        payload:  c.request(imageBase64, userPrompt),
    })
    if err != nil {
        return "", err
    }

    var env openAIEnvelope
    if err := json.Unmarshal(body, &env); err != nil {
        return "", &MissingContentError{Provider: OpenAI}
    }
    if text = firstNonEmpty(env.OutputText); text != "" {
        return text, nil
    }
    for _, item := range env.Output {
        for _, content := range item.Content {
            if text = firstNonEmpty(content.Text); text != "" {
                return text, nil
            }
        }
    }
    return "", &MissingContentError{Provider: OpenAI}
}
