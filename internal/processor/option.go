package processor

import (
	"io"
	"log"
	"time"
)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// WithsetMaxworkers 设置批内并发打分的worker上限
func WithsetMaxworkers(n int) SettingOpt {
	return func(s *Settings) {
		if n > 0 {
			s.MaxWorkers = n
		}
	}
}

// WithsetMemoizettl 设置抽取结果的缓存时长，0为不缓存
func WithsetMemoizettl(ttl time.Duration) SettingOpt {
	return func(s *Settings) {
		if ttl >= 0 {
			s.MemoizeTTL = ttl
		}
	}
}

// WithsetScorerversion 设置打分器版本号，随报告一起落库
func WithsetScorerversion(version string) SettingOpt {
	return func(s *Settings) {
		if version != "" {
			s.ScorerVersion = version
		}
	}
}

// WithsetDebug 设置调试模式
func WithsetDebug(debug bool) SettingOpt {
	return func(s *Settings) {
		s.Debug = debug
	}
}

// WithsetLogger 设置日志记录器
func WithsetLogger(logger *log.Logger) SettingOpt {
	return func(s *Settings) {
		if logger != nil {
			s.Logger = logger
		} else {
			// 提供一个 discard logger 以防万一
			s.Logger = log.New(io.Discard, "", 0)
		}
	}
}

// logDebug 记录调试级别日志
func (p *ScoreProcessor) logDebug(format string, args ...interface{}) {
	if p.settings.Debug && p.settings.Logger != nil {
		p.settings.Logger.Printf(format, args...)
	}
}
