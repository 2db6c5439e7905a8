package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/constants"
	"cv-scoring-go/internal/types"
)

// ErrNotFound 键不存在。封装底层的 redis.Nil 以便调用方解耦。
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("cv-scoring-go/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	constants.AppPrefix + ":jd:":            0.25, // JD要求缓存采样25%
	constants.AppPrefix + ":extract:":       0.1,  // 抽取结果缓存采样10%
	constants.AppPrefix + ":batch:lock:":    0.5,  // 锁操作采样50%
	constants.AppPrefix + ":batch:status:":  0.25, // 批次状态采样25%
}

// 随机数生成器
var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	source := rand.NewSource(time.Now().UnixNano())
	rnd = rand.New(source)
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}
	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}
	// 默认采样率5%
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis 键值存储，承载打分流水线的三类状态：
// JD要求画像缓存、实体抽取结果按内容哈希的记忆化、批量打分的锁与状态。
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis客户端连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis配置不能为空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis地址不能为空")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("为Redis安装OpenTelemetry钩子失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查Redis连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Ping(ctx).Err()
}

// CacheRequirementProfile 按JD文本哈希缓存要求画像。
// 同一JD重复打分时跳过LLM调用。
func (r *Redis) CacheRequirementProfile(ctx context.Context, jdHash string, profile *types.RequirementProfile) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("序列化要求画像失败: %w", err)
	}
	key := fmt.Sprintf(constants.KeyRequirementProfile, jdHash)
	return r.Client.Set(ctx, key, data, constants.RequirementCacheDuration).Err()
}

// GetCachedRequirementProfile 获取缓存的要求画像，不存在时返回 ErrNotFound。
func (r *Redis) GetCachedRequirementProfile(ctx context.Context, jdHash string) (*types.RequirementProfile, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf(constants.KeyRequirementProfile, jdHash)
	ctx, span := redisTracer.Start(ctx, "Redis.GetCachedRequirementProfile",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "GET"),
		attribute.String("db.redis.key", key),
	)

	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			span.SetStatus(codes.Ok, "cache miss")
			span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	var profile types.RequirementProfile
	if err := json.Unmarshal([]byte(val), &profile); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("反序列化要求画像失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return &profile, nil
}

// CacheExtractionSpans 按简历内容哈希缓存实体抽取结果。ttl为0时不缓存。
func (r *Redis) CacheExtractionSpans(ctx context.Context, contentHash string, spans []types.EntitySpan, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("序列化抽取结果失败: %w", err)
	}
	key := fmt.Sprintf(constants.KeyExtractionResult, contentHash)
	return r.Client.Set(ctx, key, data, ttl).Err()
}

// GetCachedExtractionSpans 获取缓存的抽取结果，不存在时返回 ErrNotFound。
func (r *Redis) GetCachedExtractionSpans(ctx context.Context, contentHash string) ([]types.EntitySpan, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}
	key := fmt.Sprintf(constants.KeyExtractionResult, contentHash)
	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var spans []types.EntitySpan
	if err := json.Unmarshal([]byte(val), &spans); err != nil {
		return nil, fmt.Errorf("反序列化抽取结果失败: %w", err)
	}
	return spans, nil
}

// SetBatchStatus 写入异步批次状态
func (r *Redis) SetBatchStatus(ctx context.Context, batchID string, status *BatchStatus) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("序列化批次状态失败: %w", err)
	}
	key := fmt.Sprintf(constants.KeyBatchStatus, batchID)
	return r.Client.Set(ctx, key, data, constants.BatchStatusDuration).Err()
}

// GetBatchStatus 获取异步批次状态，不存在时返回 ErrNotFound。
func (r *Redis) GetBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}
	key := fmt.Sprintf(constants.KeyBatchStatus, batchID)
	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var status BatchStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("反序列化批次状态失败: %w", err)
	}
	return &status, nil
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", key),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()

	if span != nil {
		if err != nil {
			if err == redis.Nil {
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return "", err
		}
		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
		span.SetStatus(codes.Ok, "")
	}

	return val, err
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", key),
			attribute.Int("db.redis.value_length", len(value)),
		)
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return err
}

// AcquireBatchLock 尝试获取批次级分布式锁，防止同一批次被重复消费。
// 返回锁持有者标识，未获取到锁时返回空串。
func (r *Redis) AcquireBatchLock(ctx context.Context, batchID string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}
	lockKey := fmt.Sprintf(constants.KeyBatchLock, batchID)
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// ReleaseBatchLock 释放批次锁，使用Lua脚本保证只释放自己持有的锁
func (r *Redis) ReleaseBatchLock(ctx context.Context, batchID string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis客户端未初始化")
	}
	lockKey := fmt.Sprintf(constants.KeyBatchLock, batchID)
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}
	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}
	return false, nil
}
