package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"cv-scoring-go/internal/config"
)

// OpenAICompatChatModel 实现 eino 的 model.ToolCallingChatModel 接口，
// 直接走OpenAI兼容的 /chat/completions 端点。
// 不支持流式输出和工具调用，JD要求提取只需要一次性文本响应。
type OpenAICompatChatModel struct {
	apiKey      string
	modelName   string
	baseURL     string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *log.Logger
}

// NewOpenAICompatChatModel 创建OpenAI兼容聊天模型客户端
func NewOpenAICompatChatModel(cfg config.JDExtractorConfig) (*OpenAICompatChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("模型服务地址不能为空")
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "qwen-plus"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	return &OpenAICompatChatModel{
		apiKey:      cfg.APIKey,
		modelName:   modelName,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		logger:      log.New(os.Stderr, "[OpenAICompatChatModel] ", log.LstdFlags|log.Lshortfile),
	}, nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate 实现 model.BaseChatModel 接口
func (m *OpenAICompatChatModel) Generate(ctx context.Context, messages []*einoschema.Message, opts ...model.Option) (*einoschema.Message, error) {
	reqMessages := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		reqMessages = append(reqMessages, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	reqBody := chatCompletionRequest{
		Model:       m.modelName,
		Messages:    reqMessages,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化聊天请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送聊天请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取聊天响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		m.logger.Printf("聊天API失败: 状态码=%d, 响应=%s", resp.StatusCode, truncateForLog(string(body), 200))
		return nil, fmt.Errorf("聊天API返回状态码 %d", resp.StatusCode)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析聊天响应失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("聊天API返回错误: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("聊天响应中没有choices")
	}

	return &einoschema.Message{
		Role:    einoschema.Assistant,
		Content: parsed.Choices[0].Message.Content,
	}, nil
}

// Stream 实现 model.BaseChatModel 接口。此客户端不支持流式输出。
func (m *OpenAICompatChatModel) Stream(ctx context.Context, messages []*einoschema.Message, opts ...model.Option) (*einoschema.StreamReader[*einoschema.Message], error) {
	return nil, fmt.Errorf("流式输出未实现")
}

// WithTools 实现 model.ToolCallingChatModel 接口。此客户端不做工具调用。
func (m *OpenAICompatChatModel) WithTools(tools []*einoschema.ToolInfo) (model.ToolCallingChatModel, error) {
	return nil, fmt.Errorf("工具调用未实现")
}
