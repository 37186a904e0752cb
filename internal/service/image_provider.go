package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"thumbgen/internal/model"
)

// ErrNoImage is returned when the provider answered without an image.
var ErrNoImage = errors.New("the model did not return an image")

// ImageProvider generates one image for a prompt and returns its URL (http or data URL).
type ImageProvider interface {
	Generate(ctx context.Context, req model.ImageRequest) (string, error)
}

// OpenRouterProvider calls OpenRouter's chat completions endpoint with image output enabled.
type OpenRouterProvider struct {
	apiKey     string
	baseURL    string
	referer    string
	httpClient *http.Client
}

func NewOpenRouterProvider(apiKey, baseURL, referer string, timeout time.Duration, httpClient *http.Client) *OpenRouterProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &OpenRouterProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		referer:    referer,
		httpClient: httpClient,
	}
}

type chatContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *chatURLObject `json:"image_url,omitempty"`
}

type chatURLObject struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []chatMessage     `json:"messages"`
	Modalities  []string          `json:"modalities"`
	ImageConfig map[string]string `json:"image_config,omitempty"`
	MaxTokens   int               `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Images []struct {
				ImageURL *chatURLObject `json:"image_url"`
				URL      string         `json:"url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenRouterProvider) Generate(ctx context.Context, in model.ImageRequest) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("image provider is not configured")
	}

	var content any = in.Prompt
	if len(in.ReferenceImages) > 0 {
		parts := make([]chatContentPart, 0, len(in.ReferenceImages)+1)
		for _, img := range in.ReferenceImages {
			parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatURLObject{URL: img}})
		}
		parts = append(parts, chatContentPart{Type: "text", Text: in.Prompt})
		content = parts
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       in.Model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Modalities:  []string{"image", "text"},
		ImageConfig: map[string]string{"aspect_ratio": in.AspectRatio},
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("encode image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if p.referer != "" {
		req.Header.Set("HTTP-Referer", p.referer)
	}
	req.Header.Set("X-Title", "ThumbGen AI")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call image provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read image provider response: %w", err)
	}

	var out chatCompletionResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("image provider returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode image provider response: %w", decodeErr)
	}

	if len(out.Choices) == 0 || len(out.Choices[0].Message.Images) == 0 {
		return "", ErrNoImage
	}
	img := out.Choices[0].Message.Images[0]
	if img.ImageURL != nil && img.ImageURL.URL != "" {
		return img.ImageURL.URL, nil
	}
	if img.URL != "" {
		return img.URL, nil
	}
	return "", ErrNoImage
}

// AspectRatioFor maps pixel dimensions to one of the provider's supported ratios.
// Unknown or missing dimensions use 16:9.
func AspectRatioFor(width, height int) string {
	if width <= 0 || height <= 0 {
		return "16:9"
	}
	ratio := float64(width) / float64(height)
	switch {
	case abs(ratio-16.0/9.0) < 0.01:
		return "16:9"
	case abs(ratio-9.0/16.0) < 0.01:
		return "9:16"
	case abs(ratio-1) < 0.01:
		return "1:1"
	default:
		return "16:9"
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
