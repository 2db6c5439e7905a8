package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// ResumePDFExtractor 用 Eino PDF Parser 把上传的简历PDF还原成纯文本，
// 供序列标注服务消费。整份文档作为单个字符串返回，不按页切分。
type ResumePDFExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  *log.Logger
}

// ResumePDFOption PDF提取器的配置选项
type ResumePDFOption func(*ResumePDFExtractor)

// WithPDFLogger 配置自定义日志记录器
func WithPDFLogger(logger *log.Logger) ResumePDFOption {
	return func(e *ResumePDFExtractor) {
		e.logger = logger
	}
}

// WithPDFTimeout 配置单次解析超时
func WithPDFTimeout(d time.Duration) ResumePDFOption {
	return func(e *ResumePDFExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewResumePDFExtractor 初始化PDF文本提取器
func NewResumePDFExtractor(ctx context.Context, options ...ResumePDFOption) (*ResumePDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 标注服务需要整份简历的连续文本
	})
	if err != nil {
		return nil, fmt.Errorf("创建PDF解析器失败: %w", err)
	}

	extractor := &ResumePDFExtractor{
		parser:  p,
		timeout: 30 * time.Second,
		logger:  log.New(os.Stderr, "[ResumePDFExtractor] ", log.LstdFlags),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// ExtractText 从 io.Reader 中提取简历文本。
// 返回: 文本内容, 解析器元数据, 错误。
func (e *ResumePDFExtractor) ExtractText(ctx context.Context, reader io.Reader, uri string) (string, map[string]interface{}, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader,
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]interface{}{
			"extraction_time": startTime.Format(time.RFC3339),
		}),
	)

	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF提取失败 (URI: %s, 用时 %.2f秒): %v", uri, duration.Seconds(), err)
		return "", nil, fmt.Errorf("PDF解析失败 (URI %s): %w", uri, err)
	}
	if len(docs) == 0 {
		return "", nil, fmt.Errorf("PDF解析无结果 (URI %s)", uri)
	}

	// 理论上ToPages=false只返回一个文档，多个时合并
	var buf bytes.Buffer
	for i, doc := range docs {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(doc.Content)
	}
	fullContent := buf.String()

	metadata := make(map[string]interface{})
	if docs[0].MetaData != nil {
		for k, v := range docs[0].MetaData {
			metadata[k] = v
		}
	}
	metadata["processing_duration_ms"] = duration.Milliseconds()
	metadata["text_length"] = len(fullContent)

	e.logger.Printf("PDF提取完成: %d 个字符 (URI: %s, 用时 %.2f秒)", len(fullContent), uri, duration.Seconds())
	return fullContent, metadata, nil
}

// ExtractTextFromBytes 从字节数组提取简历文本
func (e *ResumePDFExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	return e.ExtractText(ctx, bytes.NewReader(data), uri)
}
