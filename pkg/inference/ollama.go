package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dvm-project/dvmkit/pkg/models"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3:latest"
)

// OllamaEngine runs inference against an ollama-compatible chat API.
type OllamaEngine struct {
	BaseURL string
	Model   string
	client  *retryablehttp.Client
}

func NewOllamaEngine(baseURL, model string) *OllamaEngine {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 90 * time.Second
	client.Logger = nil
	return &OllamaEngine{
		BaseURL: baseURL,
		Model:   model,
		client:  client,
	}
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  *ollamaOpts `json:"options,omitempty"`
}

type ollamaOpts struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatResp struct {
	Message         ollamaMsg `json:"message"`
	Error           string    `json:"error,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
}

func (e *OllamaEngine) Run(ctx context.Context, input string, params RunParams) (Output, error) {
	model := params.Model
	if model == "" {
		model = e.Model
	}
	request := ollamaChatReq{
		Model:    model,
		Stream:   false,
		Messages: []ollamaMsg{{Role: "user", Content: input}},
	}
	if params.MaxTokens > 0 || params.Temperature > 0 {
		request.Options = &ollamaOpts{
			NumPredict:  params.MaxTokens,
			Temperature: params.Temperature,
		}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return Output{}, err
	}
	httpRequest, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Output{}, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := e.client.Do(httpRequest)
	if err != nil {
		return Output{}, fmt.Errorf("calling inference backend: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Output{}, fmt.Errorf("inference backend returned %d", response.StatusCode)
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return Output{}, fmt.Errorf("decoding inference response: %w", err)
	}
	if decoded.Error != "" {
		return Output{}, errors.New(decoded.Error)
	}
	return Output{
		Text: decoded.Message.Content,
		Usage: models.UsageMeta{
			PromptTokens:     decoded.PromptEvalCount,
			CompletionTokens: decoded.EvalCount,
		},
	}, nil
}

// compile-time interface check
var _ Engine = (*OllamaEngine)(nil)
