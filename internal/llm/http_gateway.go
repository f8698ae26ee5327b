package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

// HTTPGateway implements Gateway and Embedder against an OpenAI/Ollama
// chat-completions-compatible backend. Grounded on the teacher's
// HTTPClient (baseURL/apiKey/http.Client fields, NewHTTPClient
// constructor) with generate_stream's line-delimited parsing enriched
// from goblincore-geoffreyengram's Ollama streaming adapters.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGateway builds a gateway targeting baseURL with the given model.
// A nil httpClient is replaced by one with a 60-second timeout; that
// timeout covers the whole request, streaming reads included.
func NewHTTPGateway(baseURL, apiKey, model string, httpClient *http.Client, logger *zap.Logger) *HTTPGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPGateway{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model, client: httpClient, logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
	Delta   chatMessage `json:"delta"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

func (g *HTTPGateway) buildRequest(req Request, stream bool) chatRequest {
	return chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserInput},
		},
		Temperature: req.Constraints.Temperature(),
		MaxTokens:   req.Constraints.TokenCap(),
		Stream:      stream,
	}
}

func (g *HTTPGateway) newHTTPRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrBackendFailure, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrBackendFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	return httpReq, nil
}

// Generate issues a single non-streaming chat-completions request.
func (g *HTTPGateway) Generate(ctx context.Context, req Request) (string, error) {
	httpReq, err := g.newHTTPRequest(ctx, "/chat/completions", g.buildRequest(req, false))
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: backend status %d", domain.ErrBackendFailure, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrBackendFailure, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", domain.ErrBackendFailure)
	}
	return CleanResponse(parsed.Choices[0].Message.Content), nil
}

// GenerateStream issues a streaming chat-completions request and returns
// a channel of text deltas parsed from the backend's line-delimited SSE
// protocol ("data: {...}" lines, terminated by "data: [DONE]"). Malformed
// lines are skipped; a read error after the stream has started yields
// one chunk carrying an error that wraps domain.ErrBackendFailure, with no
// fallback text, before the channel closes.
func (g *HTTPGateway) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	httpReq, err := g.newHTTPRequest(ctx, "/chat/completions", g.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: backend status %d", domain.ErrBackendFailure, resp.StatusCode)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			line = strings.TrimPrefix(line, "data:")
			line = strings.TrimSpace(line)
			if line == "[DONE]" {
				out <- Chunk{Done: true}
				return
			}

			var parsed chatResponse
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				// Skip malformed lines rather than aborting the stream.
				continue
			}
			if len(parsed.Choices) == 0 {
				continue
			}
			text := parsed.Choices[0].Delta.Content
			if text == "" {
				text = parsed.Choices[0].Message.Content
			}
			if text != "" {
				out <- Chunk{Text: text}
			}
		}

		if err := scanner.Err(); err != nil {
			out <- Chunk{Error: fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)}
			return
		}
		out <- Chunk{Done: true}
	}()
	return out, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the backend's embeddings endpoint. Used by internal/vectorstore.
func (g *HTTPGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	httpReq, err := g.newHTTPRequest(ctx, "/embeddings", embeddingRequest{Model: g.model, Input: text})
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: backend status %d", domain.ErrBackendFailure, resp.StatusCode)
	}
	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode embedding: %v", domain.ErrBackendFailure, err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding data", domain.ErrBackendFailure)
	}
	return parsed.Data[0].Embedding, nil
}
