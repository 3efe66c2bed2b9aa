package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"detective-llm/internal/domain"
)

// ErrEmptyCompletion indica que el upstream respondió sin contenido.
var ErrEmptyCompletion = errors.New("llm empty completion")

// Request describe una llamada de completado simple (sin streaming).
type Request struct {
	System      string
	Messages    []domain.ChatMessage
	Temperature float32
	MaxTokens   int
	// JSONObject pide response_format json_object al upstream; los jueces
	// estructurados lo usan siempre.
	JSONObject       bool
	FrequencyPenalty float32
}

// Client es la capacidad de completado que consume el motor. Fallible; el
// que llama decide si el fallo se propaga o se degrada (fail open).
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAIClient habla con cualquier endpoint compatible con chat/completions.
// Se construye por request porque la credencial y el base URL llegan en las
// cabeceras de cada petición.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient arma un cliente con timeout acotado por llamada.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	ccr := openai.ChatCompletionRequest{
		Model:            c.model,
		Messages:         messages,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	if req.JSONObject {
		ccr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
