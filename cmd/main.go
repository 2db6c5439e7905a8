package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cv-scoring-go/internal/api/handler"
	"cv-scoring-go/internal/api/router"
	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/extractor"
	appCoreLogger "cv-scoring-go/internal/logger"
	"cv-scoring-go/internal/outbox"
	"cv-scoring-go/internal/parser"
	"cv-scoring-go/internal/processor"
	"cv-scoring-go/internal/scorer"
	"cv-scoring-go/internal/storage"
	"cv-scoring-go/internal/textnorm"
	"cv-scoring-go/internal/tracing"
	"cv-scoring-go/internal/types"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/pflag"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
)

var (
	version     = "2.0.0"         //nolint:gochecknoglobals
	serviceName = "cv-scoring-go" //nolint:gochecknoglobals
)

// @title CV Scoring API
// @version 2.0
// @description 简历批量打分服务的API文档。
// @BasePath /api/v1
func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRatio:  cfg.Tracing.SampleRatio,
		ServiceName:  cfg.Tracing.ServiceName,
	})
	if err != nil {
		glog.Fatalf("初始化追踪失败: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			glog.Warnf("关闭追踪提供者失败: %v", err)
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 发件箱中继把批次提交事务里落库的消息投递到RabbitMQ
	var messageRelay *outbox.MessageRelay
	if storageManager.MySQL != nil && storageManager.RabbitMQ != nil {
		relayLogger := log.New(appCoreLogger.Logger, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
		messageRelay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, relayLogger)
		messageRelay.Start()
		glog.Info("消息中继服务已启动")
	} else {
		glog.Warn("MySQL或RabbitMQ未配置，异步打分不可用")
	}

	embedder, err := parser.NewHTTPEmbedder(cfg.Embedding)
	if err != nil {
		glog.Fatalf("初始化向量化客户端失败: %v", err)
	}
	glog.Info("向量化客户端初始化成功")

	chatModel, err := parser.NewOpenAICompatChatModel(cfg.JDExtractor)
	if err != nil {
		glog.Fatalf("初始化LLM聊天模型失败: %v", err)
	}

	jdLogger := componentLogger(cfg, "[JDExtractor] ")
	var jdOptions []parser.JDExtractorOption
	if cfg.JDExtractor.ExtractionTimeout != "" {
		d, err := time.ParseDuration(cfg.JDExtractor.ExtractionTimeout)
		if err != nil {
			glog.Warnf("解析extraction_timeout失败 (%s): %v, 使用默认值", cfg.JDExtractor.ExtractionTimeout, err)
		} else {
			jdOptions = append(jdOptions, parser.WithExtractionTimeout(d))
		}
	}
	jdExtractor := parser.NewJDExtractor(chatModel, jdLogger, jdOptions...)
	glog.Info("JD要求提取器初始化成功")

	// Azure翻译是可选的预处理步骤，未配置Key时整体跳过
	var translator processor.Translator
	if cfg.Translator.Key != "" {
		translator = parser.NewAzureTranslator(cfg.Translator)
		glog.Info("Azure翻译器初始化成功")
	} else {
		glog.Info("未配置翻译器，JD直接进入要求提取")
	}

	var tagger processor.ResumeTagger
	if cfg.Tagger.ServerURL != "" {
		taggerClient, err := parser.NewTaggerClient(cfg.Tagger)
		if err != nil {
			glog.Fatalf("初始化标注客户端失败: %v", err)
		}
		tagger = taggerClient
		glog.Info("标注客户端初始化成功")
	} else {
		glog.Warn("未配置标注服务，简历文本抽取接口不可用")
	}

	normalizer, err := textnorm.NewNormalizer(cfg.Scoring.FoldingRules)
	if err != nil {
		glog.Fatalf("初始化文本归一化器失败: %v", err)
	}
	roleTagger := textnorm.NewRoleTagger(cfg.Scoring.RoleKeywords)

	candidateScorer, err := scorer.NewScorer(embedder, normalizer, roleTagger, scorerConfig(&cfg.Scoring))
	if err != nil {
		glog.Fatalf("初始化打分器失败: %v", err)
	}

	aggregator, err := scorer.NewAggregator(scorer.AggregationMode(cfg.Scoring.Aggregation), scorerWeights(cfg.Scoring.Weights))
	if err != nil {
		glog.Fatalf("初始化聚合器失败: %v", err)
	}
	glog.Infof("打分器初始化成功，聚合口径: %s", aggregator.Mode())

	var extractorOptions []extractor.Option
	if cfg.Extractor.LegacyCompat {
		extractorOptions = append(extractorOptions, extractor.WithLegacyCompat())
		glog.Warn("实体抽取器运行在历史兼容模式")
	}
	entityExtractor := extractor.New(extractorOptions...)

	processorLogger := log.New(appCoreLogger.Logger, "[ScoreProcessor] ", log.LstdFlags|log.Lshortfile)
	scoreProcessor, err := processor.NewScoreProcessor(processor.Components{
		JDExtractor: jdExtractor,
		Translator:  translator,
		Tagger:      tagger,
		Scorer:      candidateScorer,
		Aggregator:  aggregator,
		Extractor:   entityExtractor,
		Storage:     storageManager,
	},
		processor.WithsetMaxworkers(cfg.Server.MaxBatchWorkers),
		processor.WithsetMemoizettl(time.Duration(cfg.Extractor.MemoizeTTLHours)*time.Hour),
		processor.WithsetDebug(cfg.Logger.Level == "debug"),
		processor.WithsetLogger(processorLogger),
	)
	if err != nil {
		glog.Fatalf("初始化打分处理器失败: %v", err)
	}
	glog.Info("打分处理器初始化成功")

	pdfExtractor, err := parser.NewResumePDFExtractor(ctx, parser.WithPDFLogger(componentLogger(cfg, "[ResumePDF] ")))
	if err != nil {
		glog.Fatalf("创建PDF提取器失败: %v", err)
	}
	glog.Info("PDF提取器初始化成功")

	scoreHandler := handler.NewScoreHandler(cfg, storageManager, scoreProcessor, tagger, pdfExtractor)
	glog.Info("ScoreHandler初始化成功")

	var consumerStop chan<- struct{}
	if storageManager.RabbitMQ != nil {
		consumerStop, err = scoreHandler.StartScoreJobConsumer(ctx)
		if err != nil {
			glog.Fatalf("启动打分任务消费者失败: %v", err)
		}
		glog.Info("打分任务消费者已启动")
	}

	hertzTracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		hertzTracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, cfg, scoreHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("%s v%s HTTP服务器启动中，监听地址: %s", serviceName, version, cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	if consumerStop != nil {
		close(consumerStop)
		glog.Info("打分任务消费者已停止")
	}
	if messageRelay != nil {
		messageRelay.Stop()
		glog.Info("消息中继服务已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	logFilePath := "logs/app.log"
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	level := zerolog.DebugLevel
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = "15:04:05"

	logger := zerolog.New(multiWriter).With().Timestamp().Caller().Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)

	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(glog.LevelDebug)

	log.Println("Logger initialized with Zerolog (appCoreLogger & glog via adapter), writing to console and file:", logFilePath)
}

// componentLogger 组件级stdlib logger，debug级别下输出到stderr，否则静默
func componentLogger(cfg *config.Config, prefix string) *log.Logger {
	if cfg.Logger.Level == "debug" {
		return log.New(os.Stderr, prefix, log.LstdFlags|log.Lshortfile)
	}
	return log.New(io.Discard, "", 0)
}

// scorerConfig 把外置的打分配置映射为打分器配置
func scorerConfig(sc *config.ScoringConfig) scorer.Config {
	return scorer.Config{
		SkillMatchThreshold:   sc.SkillMatchThreshold,
		DesignationTagBonus:   sc.DesignationTagBonus,
		DesignationTagPenalty: sc.DesignationTagPenalty,
		LogisticMidpoint:      sc.LogisticMidpoint,
		LogisticSteepness:     sc.LogisticSteepness,
		DegreeMatchThreshold:  sc.DegreeMatchThreshold,
		ITDegreeThreshold:     sc.ITDegreeThreshold,
		ITDegreePrototypes:    sc.ITDegreePrototypes,
		GPAPolicy:             scorer.GPAPolicy(sc.GPAPolicy),
		GPABinaryThreshold:    sc.GPABinaryThreshold,
	}
}

// scorerWeights 配置里的维度名权重映射为打分维度权重
func scorerWeights(weights map[string]float64) scorer.Weights {
	if len(weights) == 0 {
		return nil
	}
	converted := make(scorer.Weights, len(weights))
	for name, w := range weights {
		converted[types.Dimension(name)] = w
	}
	return converted
}
