package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dualsaude/docreader/internal/core/domain"
	"github.com/dualsaude/docreader/internal/infrastructure/resilience"
)

const (
	operationAnalyzeText  = "openai.analyze_text"
	operationAnalyzeImage = "openai.analyze_image"
)

// CallObserver receives provider call telemetry.
type CallObserver interface {
	ObserveProviderCall(operation string, duration time.Duration, err error)
	ObserveTokenUsage(model string, promptTokens, completionTokens int)
}

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// Timeout bounds a single provider attempt.
	Timeout    time.Duration
	HTTPClient *http.Client
	Executor   *resilience.Executor
	Observer   CallObserver
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	executor    *resilience.Executor
	observer    CallObserver
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(opts.APIKey),
		model:       model,
		temperature: opts.Temperature,
		timeout:     timeout,
		httpClient:  httpClient,
		executor:    opts.Executor,
		observer:    opts.Observer,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) AnalyzeText(ctx context.Context, text string, docType domain.DocumentType) (domain.ParsedAnalysis, error) {
	messages := []chatMessage{
		{Role: "system", Content: buildSystemPrompt(docType)},
		{Role: "user", Content: buildTextPrompt(text)},
	}
	raw, err := c.complete(ctx, operationAnalyzeText, messages)
	if err != nil {
		return domain.ParsedAnalysis{}, err
	}
	return ParseAnalysis(raw, docType), nil
}

func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mimeType string, docType domain.DocumentType) (domain.ParsedAnalysis, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	messages := []chatMessage{
		{Role: "system", Content: buildSystemPrompt(docType)},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: buildImagePrompt(docType)},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		}},
	}
	raw, err := c.complete(ctx, operationAnalyzeImage, messages)
	if err != nil {
		return domain.ParsedAnalysis{}, err
	}
	return ParseAnalysis(raw, docType), nil
}

func (c *Client) complete(ctx context.Context, operation string, messages []chatMessage) (string, error) {
	if c.apiKey == "" {
		return "", domain.WrapError(domain.ErrNotConfigured, operation, errors.New("openai api key is empty"))
	}

	request := chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.temperature,
		ResponseFormat: map[string]any{"type": "json_object"},
	}

	var content string
	call := func(callCtx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(callCtx, c.timeout)
		defer cancel()

		var response chatResponse
		if err := c.postJSON(attemptCtx, "/chat/completions", request, &response, "chat completion"); err != nil {
			return err
		}
		if c.observer != nil {
			c.observer.ObserveTokenUsage(c.model, response.Usage.PromptTokens, response.Usage.CompletionTokens)
		}
		content = ""
		if len(response.Choices) > 0 {
			content = response.Choices[0].Message.Content
		}
		return nil
	}

	start := time.Now()
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if c.observer != nil {
		c.observer.ObserveProviderCall(operation, time.Since(start), err)
	}
	if err != nil {
		return "", wrapProviderError(operation, err)
	}
	return content, nil
}
