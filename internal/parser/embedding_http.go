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
	"time"

	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/scorer"
)

// HTTPEmbedder 通过OpenAI兼容的HTTP向量化端点实现 scorer.EmbeddingProvider。
// 可被多个并发打分请求只读共享。
type HTTPEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewHTTPEmbedder 创建向量化客户端
func NewHTTPEmbedder(cfg config.EmbeddingConfig) (*HTTPEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("向量化服务地址不能为空")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPEmbedder{
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: cfg.Dimensions,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.New(os.Stderr, "[HTTPEmbedder] ", log.LstdFlags|log.Lshortfile),
	}, nil
}

// GetDimensions 返回配置的向量维度
func (e *HTTPEmbedder) GetDimensions() int {
	return e.dimensions
}

// embeddingRequest OpenAI兼容的向量化请求结构
type embeddingRequest struct {
	Input      interface{} `json:"input"` // string 或 []string
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions,omitempty"`
}

// embeddingResponse OpenAI兼容的向量化响应结构
type embeddingResponse struct {
	Object string               `json:"object"`
	Data   []embeddingDataEntry `json:"data"`
	Model  string               `json:"model"`
	Usage  embeddingUsage       `json:"usage"`
	Error  *embeddingAPIError   `json:"error,omitempty"`
}

type embeddingDataEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// embeddingAPIError API级别错误，可能随200响应返回
type embeddingAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// EmbedStrings 批量向量化文本。
// 网络失败与非2xx响应统一包装为 scorer.ErrProviderUnavailable，
// 上层据此让整个打分请求失败而不是带着错误向量继续算。
func (e *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var input interface{}
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	reqBody := embeddingRequest{
		Input: input,
		Model: e.model,
	}
	if e.dimensions > 0 {
		reqBody.Dimensions = e.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化向量化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Printf("向量化请求发送失败: %v", err)
		return nil, fmt.Errorf("%w: %v", scorer.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", scorer.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr embeddingAPIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			e.logger.Printf("向量化API失败: 状态码=%d, 类型=%s, 错误=%s", resp.StatusCode, apiErr.Type, apiErr.Message)
			return nil, fmt.Errorf("%w: 状态码 %d: %s", scorer.ErrProviderUnavailable, resp.StatusCode, apiErr.Message)
		}
		e.logger.Printf("向量化API失败: 状态码=%d, 响应=%s", resp.StatusCode, truncateForLog(string(body), 200))
		return nil, fmt.Errorf("%w: 状态码 %d", scorer.ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析向量化响应失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("%w: %s", scorer.ErrProviderUnavailable, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("向量化响应条数不匹配: 期望 %d, 实际 %d", len(texts), len(parsed.Data))
	}

	// 响应顺序按Index对齐，不信任返回顺序
	embeddings := make([][]float64, len(texts))
	for _, entry := range parsed.Data {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, fmt.Errorf("向量化响应索引越界: %d", entry.Index)
		}
		embeddings[entry.Index] = entry.Embedding
	}

	e.logger.Printf("向量化完成: %d 条文本, 维度=%d, tokens=%d",
		len(texts), firstEmbeddingDim(embeddings), parsed.Usage.TotalTokens)
	return embeddings, nil
}

// firstEmbeddingDim 获取首个向量的维度，用于日志
func firstEmbeddingDim(embeddings [][]float64) int {
	if len(embeddings) > 0 {
		return len(embeddings[0])
	}
	return 0
}

// truncateForLog 截断过长文本，避免日志刷屏
func truncateForLog(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
