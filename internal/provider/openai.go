package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"pilot/internal/chat"
	"pilot/internal/config"
)

const defaultMaxRetries = 3

// OpenAIProvider 基于 go-openai SDK 的 Provider 实现，兼容任何 OpenAI 风格端点
// OpenAIProvider implements Provider with the go-openai SDK and works against
// any OpenAI-style endpoint.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	maxRetries int
	mu         sync.RWMutex
}

// NewOpenAIProvider 创建 SDK provider
// NewOpenAIProvider creates the SDK-backed provider
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		sdkCfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}
	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	sdkCfg.HTTPClient = httpClient

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(sdkCfg),
		model:      cfg.Model,
		maxRetries: defaultMaxRetries,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) CurrentModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model is empty")
	}
	p.mu.Lock()
	p.model = model
	p.mu.Unlock()
	return nil
}

// Chat 发送请求并消费流式响应；瞬时失败按指数退避重试
// Chat sends the request and consumes the stream, retrying transient
// failures with exponential backoff.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest, cb *StreamCallbacks) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.CurrentModel()
	}
	sdkReq := buildRequest(model, req)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return ChatResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.chatStream(ctx, sdkReq, cb)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// 不可重试的错误 / Non-retryable errors
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ChatResponse{}, err
		}
	}
	return ChatResponse{}, fmt.Errorf("chat failed after %d retries: %w", p.maxRetries, lastErr)
}

func (p *OpenAIProvider) chatStream(ctx context.Context, req openai.ChatCompletionRequest, cb *StreamCallbacks) (ChatResponse, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("create stream: %w", err)
	}
	defer stream.Close()

	var (
		contentBuilder   strings.Builder
		reasoningBuilder strings.Builder
		finishReason     string
		usage            Usage
	)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// 已有部分内容时返回已收到的而不是报错
			// With partial content in hand, return it instead of failing
			if contentBuilder.Len() > 0 {
				break
			}
			return ChatResponse{}, fmt.Errorf("recv stream: %w", err)
		}

		for _, choice := range resp.Choices {
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}

			// 文本内容 / Text content
			if choice.Delta.Content != "" {
				contentBuilder.WriteString(choice.Delta.Content)
				if cb != nil && cb.OnTextChunk != nil {
					cb.OnTextChunk(choice.Delta.Content)
				}
			}

			// Reasoning 内容（o 系模型及 DeepSeek 风格端点）
			// Reasoning content (o-series models, DeepSeek-style endpoints)
			if choice.Delta.ReasoningContent != "" {
				reasoningBuilder.WriteString(choice.Delta.ReasoningContent)
				if cb != nil && cb.OnReasoningChunk != nil {
					cb.OnReasoningChunk(choice.Delta.ReasoningContent)
				}
			}
		}

		// Usage（部分服务端在最后一个 chunk 中返回）
		// Usage (some servers report it in the last chunk)
		if resp.Usage != nil {
			usage = Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
			if resp.Usage.CompletionTokensDetails != nil {
				usage.ReasoningTokens = resp.Usage.CompletionTokensDetails.ReasoningTokens
			}
		}
	}

	if cb != nil && cb.OnUsage != nil {
		cb.OnUsage(usage)
	}

	return ChatResponse{
		Content:      contentBuilder.String(),
		Reasoning:    reasoningBuilder.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

func buildRequest(model string, req ChatRequest) openai.ChatCompletionRequest {
	sdkReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Stream:   true,
	}
	if req.Temperature != nil {
		sdkReq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		sdkReq.TopP = float32(*req.TopP)
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}
	return sdkReq
}

// convertMessages 将内部消息映射为 SDK 消息；多模态消息展开为内容分段
// convertMessages maps internal messages to SDK messages, expanding
// multimodal messages into content parts.
func convertMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: m.Role}
		if len(m.MultiContent) > 0 {
			msg.MultiContent = convertParts(m.MultiContent)
		} else {
			msg.Content = m.Content
		}
		out = append(out, msg)
	}
	return out
}

func convertParts(parts []chat.ContentPart) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case chat.TextContent:
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.Text,
			})
		case chat.ImageContent:
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    p.ImageURL.URL,
					Detail: openai.ImageURLDetail(p.ImageURL.Detail),
				},
			})
		}
	}
	return out
}
