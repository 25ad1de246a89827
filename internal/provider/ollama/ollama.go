package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"chatrelay/internal/provider"
	"chatrelay/pkg/logger"
)

const providerName = "ollama"

// maxResponseBytes caps how much of a response body is read. Replies are
// bounded by num_predict, so a larger body is not a chat reply.
const maxResponseBytes = 1 << 20

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to Ollama server")
	ErrModelNotFound    = errors.New("model not found")
	ErrInvalidResponse  = errors.New("invalid response from Ollama")
	ErrRequestTimeout   = errors.New("request timeout")
)

// OllamaProvider talks to a local Ollama server over its HTTP API.
type OllamaProvider struct {
	endpoint   string
	model      string
	httpClient *http.Client
	keepAlive  string
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}

	return &OllamaProvider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		keepAlive: cfg.KeepAlive,
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return providerName
}

// Model returns the default model used when a request names none.
func (p *OllamaProvider) Model() string {
	return p.model
}

// Chat sends a non-streaming chat request and returns the response.
func (p *OllamaProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	ollamaReq := p.buildRequest(req)

	logger.Debug().
		Str("model", ollamaReq.Model).
		Int("messages", len(ollamaReq.Messages)).
		Msg("Ollama chat request")

	resp, err := p.doRequest(ctx, http.MethodPost, "/api/chat", ollamaReq)
	if err != nil {
		return nil, p.classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, p.classifyError(fmt.Errorf("%w: read body: %v", ErrConnectionFailed, err))
	}
	if len(body) > maxResponseBytes {
		return nil, p.classifyError(fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidResponse, maxResponseBytes))
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Str("body", logger.Preview(string(body))).Msg("Ollama error response")
		return nil, p.classifyError(p.handleErrorResponse(resp.StatusCode, body))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		logger.Error().Err(err).Str("body", logger.Preview(string(body))).Msg("Failed to parse Ollama response")
		return nil, p.classifyError(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	if ollamaResp.Error != "" {
		return nil, p.classifyError(fmt.Errorf("ollama error: %s", ollamaResp.Error))
	}
	if ollamaResp.Message == nil {
		return nil, p.classifyError(fmt.Errorf("%w: missing message", ErrInvalidResponse))
	}

	return p.convertResponse(&ollamaResp), nil
}

// buildRequest converts a provider.ChatRequest to an Ollama request.
func (p *OllamaProvider) buildRequest(req provider.ChatRequest) *ollamaRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	model = strings.TrimPrefix(model, "ollama:")

	ollamaReq := &ollamaRequest{
		Model:     model,
		Messages:  make([]ollamaMessage, 0, len(req.Messages)),
		Stream:    false,
		KeepAlive: p.keepAlive,
	}

	for _, msg := range req.Messages {
		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if o := req.Options; o != nil {
		ollamaReq.Options = &ollamaOptions{
			Temperature: o.Temperature,
			TopP:        o.TopP,
			TopK:        o.TopK,
			NumPredict:  o.NumPredict,
			NumCtx:      o.NumCtx,
		}
	}

	return ollamaReq
}

// doRequest sends an HTTP request to the Ollama API.
func (p *OllamaProvider) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.endpoint+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return resp, nil
}

// handleErrorResponse converts an error response to an appropriate error.
func (p *OllamaProvider) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if statusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrModelNotFound, errResp.Error)
		}
		return fmt.Errorf("ollama error: %s", errResp.Error)
	}

	switch statusCode {
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusServiceUnavailable:
		return ErrConnectionFailed
	default:
		return fmt.Errorf("ollama returned status %d: %s", statusCode, logger.Preview(string(body)))
	}
}

// convertResponse converts an Ollama response to a provider response.
func (p *OllamaProvider) convertResponse(resp *ollamaResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{
		Content:      resp.Message.Content,
		Model:        resp.Model,
		FinishReason: provider.FinishReasonStop,
	}
	if resp.DoneReason == "length" {
		result.FinishReason = provider.FinishReasonLength
	}

	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	return result
}

// Models lists the models installed on the server.
func (p *OllamaProvider) Models(ctx context.Context) ([]string, error) {
	resp, err := p.doRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, p.classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch models: status %d", resp.StatusCode)
	}

	var modelsResp ollamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	models := make([]string, 0, len(modelsResp.Models))
	for _, m := range modelsResp.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Version returns the server version reported by /api/version.
func (p *OllamaProvider) Version(ctx context.Context) (string, error) {
	resp, err := p.doRequest(ctx, http.MethodGet, "/api/version", nil)
	if err != nil {
		return "", p.classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch version: status %d", resp.StatusCode)
	}

	var v ollamaVersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("failed to decode version response: %w", err)
	}
	if v.Version == "" {
		return "", fmt.Errorf("%w: empty version", ErrInvalidResponse)
	}
	return v.Version, nil
}

// Ping checks that the server answers on /api/tags.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	resp, err := p.doRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return p.classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &provider.ProviderError{
			Code:      provider.ErrCodeServiceUnavailable,
			Message:   fmt.Sprintf("Ollama returned status %d", resp.StatusCode),
			Provider:  providerName,
			Retryable: true,
		}
	}
	return nil
}

// classifyError converts a generic error to a ProviderError with appropriate code.
func (p *OllamaProvider) classifyError(err error) *provider.ProviderError {
	pe := &provider.ProviderError{Provider: providerName, Err: err}

	switch {
	case errors.Is(err, ErrRequestTimeout):
		pe.Code = provider.ErrCodeTimeout
		pe.Message = "request timeout"
		pe.Retryable = true
	case errors.Is(err, ErrConnectionFailed):
		pe.Code = provider.ErrCodeServiceUnavailable
		pe.Message = "cannot reach Ollama, make sure it is running"
		pe.Retryable = true
	case errors.Is(err, ErrModelNotFound):
		pe.Code = provider.ErrCodeModelNotFound
		pe.Message = "model not found, pull it with `ollama pull`"
	case errors.Is(err, ErrInvalidResponse):
		pe.Code = provider.ErrCodeInvalidResponse
		pe.Message = "Ollama returned an invalid response"
	default:
		pe.Code = provider.ErrCodeUnknown
		pe.Message = "ollama request failed"
	}
	return pe
}
