package ai

import (
    "context"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/local/comesano/internal/prompt"
)

const (
    DefaultGeminiModel   = "gemini-2.0-flash"
    defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
)

// GeminiClient talks to generateContent with the key in the query string.
type GeminiClient struct {
    http    *http.Client
    apiKey  string
    model   string
    baseURL string
}

func NewGeminiClient(apiKey, model string, opts ...Option) *GeminiClient {
    o := buildOptions(defaultGeminiBaseURL, opts)
    if model = strings.TrimSpace(model); model == "" { model = DefaultGeminiModel }
    return &GeminiClient{http: o.httpClient, apiKey: strings.TrimSpace(apiKey), model: model, baseURL: o.baseURL}
}

func (c *GeminiClient) Provider() Provider { return Gemini }
func (c *GeminiClient) Model() string      { return c.model }

type geminiBlob struct {
    MimeType string `json:"mimeType"`
    Data     string `json:"data"`
}

type geminiPart struct {
    Text       string      `json:"text,omitempty"`
    InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiContent struct {
    Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
    Contents []geminiContent `json:"contents"`
}

type geminiEnvelope struct {
    Candidates []struct {
        Content struct {
            Parts []struct {
                Text string `json:"text"`
            } `json:"parts"`
        } `json:"content"`
    } `json:"candidates"`
}

func (c *GeminiClient) request(imageBase64, userPrompt string) geminiRequest {
    return geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{
        {Text: prompt.SystemInstruction + "\n" + userPrompt},
        {InlineData: &geminiBlob{MimeType: "image/jpeg", Data: imageBase64}},
    }}}}
}

func (c *GeminiClient) endpointPath() string {
    return c.baseURL + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"
}

func (c *GeminiClient) AnalyzeImage(ctx context.Context, imageBase64, userPrompt string) (text string, err error) {
    if c.apiKey == "" {
        return "", &MissingAPIKeyError{Provider: Gemini}
    }
    start := time.Now()
    defer func() { observe(Gemini, c.model, start, err) }()

    path := c.endpointPath()
    body, err := post(ctx, c.http, call{
        provider: Gemini,
        model:    c.model,
        endpoint: path + "?key=" + url.QueryEscape(c.apiKey),
        logURL:   path + "?key=REDACTED",
        payload:  c.request(imageBase64, userPrompt),
    })
    if err != nil {
        return "", err
    }

    var env geminiEnvelope
    if err := json.Unmarshal(body, &env); err != nil || len(env.Candidates) == 0 {
        return "", &MissingContentError{Provider: Gemini}
    }
    for _, part := range env.Candidates[0].Content.Parts {
        if text = firstNonEmpty(part.Text); text != "" {
            return text, nil
        }
    }
    return "", &MissingContentError{Provider: Gemini}
}
