package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cv-scoring-go/internal/config"
)

// AzureTranslator 调用Azure Translator v3把JD/简历文本翻译到打分用语言。
// 翻译是尽力而为的：任何失败都返回原文，打分流程继续。
type AzureTranslator struct {
	endpoint   string
	key        string
	region     string
	fromLang   string
	toLang     string
	httpClient *http.Client
	logger     *log.Logger
}

// NewAzureTranslator 创建翻译客户端。Key为空时返回nil，调用方据此跳过翻译。
func NewAzureTranslator(cfg config.TranslatorConfig) *AzureTranslator {
	if cfg.Key == "" || cfg.Endpoint == "" {
		return nil
	}

	from := cfg.FromLang
	if from == "" {
		from = "vi"
	}
	to := cfg.ToLang
	if to == "" {
		to = "en"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &AzureTranslator{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		key:        cfg.Key,
		region:     cfg.Region,
		fromLang:   from,
		toLang:     to,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.New(os.Stderr, "[AzureTranslator] ", log.LstdFlags|log.Lshortfile),
	}
}

type translateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Translate 翻译文本。纯ASCII文本视为已是英文，直接跳过。
// 失败时记录日志并返回原文，绝不让翻译问题中断打分。
func (t *AzureTranslator) Translate(ctx context.Context, text string) string {
	if t == nil || strings.TrimSpace(text) == "" {
		return text
	}
	if isLikelyEnglish(text) {
		return text
	}

	translated, err := t.translate(ctx, text)
	if err != nil {
		t.logger.Printf("翻译失败，使用原文: %v", err)
		return text
	}
	return translated
}

func (t *AzureTranslator) translate(ctx context.Context, text string) (string, error) {
	jsonData, err := json.Marshal([]map[string]string{{"text": text}})
	if err != nil {
		return "", fmt.Errorf("序列化翻译请求失败: %w", err)
	}

	params := url.Values{}
	params.Set("api-version", "3.0")
	params.Set("from", t.fromLang)
	params.Set("to", t.toLang)
	reqURL := t.endpoint + "/translate?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", t.key)
	req.Header.Set("Ocp-Apim-Subscription-Region", t.region)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送翻译请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取翻译响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("翻译API返回状态码 %d: %s", resp.StatusCode, truncateForLog(string(body), 200))
	}

	var results []translateResult
	if err := json.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("解析翻译响应失败: %w", err)
	}
	if len(results) == 0 || len(results[0].Translations) == 0 {
		return "", fmt.Errorf("翻译响应为空")
	}
	return results[0].Translations[0].Text, nil
}

// isLikelyEnglish 粗略的语言探测：全ASCII文本基本可以断定不是越南语。
func isLikelyEnglish(text string) bool {
	for _, r := range text {
		if r > 127 {
			return false
		}
	}
	return true
}
