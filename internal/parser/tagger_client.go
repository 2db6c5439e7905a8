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

	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/types"
)

// TaggerClient 调用上游BERT序列标注服务，把简历纯文本变成带标签的词元序列。
// 服务暴露 POST /resume_parsing，请求体 {"cv": "<text>"}。
type TaggerClient struct {
	serverURL  string
	httpClient *http.Client
	logger     *log.Logger
}

// NewTaggerClient 创建标注服务客户端
func NewTaggerClient(cfg config.TaggerConfig) (*TaggerClient, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("标注服务地址不能为空")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &TaggerClient{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.New(os.Stderr, "[TaggerClient] ", log.LstdFlags|log.Lshortfile),
	}, nil
}

type taggerRequest struct {
	CV string `json:"cv"`
}

type taggerResponse struct {
	Tokens      []types.Token `json:"tokens"`
	Status      string        `json:"status"`
	ProcessedAt string        `json:"processed_at"`
	Error       string        `json:"error,omitempty"`
}

// Tag 对简历文本做序列标注，返回词元序列。
// 词元的position由服务端赋值，这里原样透传，抽取器依赖它定位实体边界。
func (c *TaggerClient) Tag(ctx context.Context, resumeText string) ([]types.Token, error) {
	if strings.TrimSpace(resumeText) == "" {
		return nil, fmt.Errorf("简历文本为空")
	}

	jsonData, err := json.Marshal(taggerRequest{CV: resumeText})
	if err != nil {
		return nil, fmt.Errorf("序列化标注请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/resume_parsing", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("标注请求发送失败: %v", err)
		return nil, fmt.Errorf("调用标注服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取标注响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var parsed taggerResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
			return nil, fmt.Errorf("标注服务返回错误: 状态码 %d: %s", resp.StatusCode, parsed.Error)
		}
		return nil, fmt.Errorf("标注服务返回错误: 状态码 %d", resp.StatusCode)
	}

	var parsed taggerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析标注响应失败: %w", err)
	}
	if parsed.Status != "success" {
		return nil, fmt.Errorf("标注服务状态异常: %q", parsed.Status)
	}

	c.logger.Printf("标注完成: %d 个词元", len(parsed.Tokens))
	return parsed.Tokens, nil
}
