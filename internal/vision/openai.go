package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"

	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"

	maxResponseTokens  = 4096
	requestTemperature = 0.1
)

// OpenAIClient sends page images to the OpenAI chat completions API.
type OpenAIClient struct {
	BaseURL    string
	HTTPClient *http.Client

	apiKey string
	model  string
}

// NewOpenAIClient returns a client for the given key and model; an
// empty model selects DefaultOpenAIModel.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		BaseURL:    openAIBaseURL,
		HTTPClient: &http.Client{Timeout: clientTimeout},
		apiKey:     apiKey,
		model:      model,
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string       `json:"role"`
	Content []openAIPart `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DetectPage sends one PNG page image with the detection prompt and
// returns the model's text output.
func (c *OpenAIClient) DetectPage(ctx context.Context, png []byte, pageIndex int) (string, error) {
	slog.Debug("Requesting vision detections", "provider", ProviderOpenAI, "model", c.model, "page", pageIndex)

	payload := openAIRequest{
		Model:       c.model,
		MaxTokens:   maxResponseTokens,
		Temperature: requestTemperature,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIPart{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &openAIImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
				}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: call api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
