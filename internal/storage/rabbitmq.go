package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cv-scoring-go/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageQueue 消息队列接口
type MessageQueue interface {
	// 发布消息
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error

	// 发布JSON格式消息
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error

	// 发布批量打分任务
	PublishScoreJob(ctx context.Context, job *ScoreJobMessage) error

	// 关闭连接
	Close() error
}

// 确保RabbitMQ实现了MessageQueue接口
var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ 提供消息队列功能
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	declared     map[string]bool // 已声明的exchange/queue/binding (key带类型前缀)
	declaredMu   sync.Mutex
	publishMutex sync.Mutex
	cfg          *config.RabbitMQConfig
	logger       *log.Logger
}

// NewRabbitMQ 创建RabbitMQ客户端并声明打分任务相关的拓扑
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		declared: make(map[string]bool),
		cfg:      cfg,
		logger:   log.New(os.Stdout, "[RabbitMQ] ", log.LstdFlags),
	}

	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, poolErr := conn.Channel()
			if poolErr != nil {
				mq.logger.Printf("创建RabbitMQ通道失败: %v", poolErr)
				return nil
			}
			return ch
		},
	}

	// 测试连接和通道
	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	if err := mq.setupScoreJobTopology(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("声明打分任务拓扑失败: %w", err)
	}

	mq.logger.Printf("成功连接到RabbitMQ服务器")
	return mq, nil
}

// setupScoreJobTopology 声明打分任务使用的exchange、队列与绑定
func (r *RabbitMQ) setupScoreJobTopology() error {
	if err := r.EnsureExchange(r.cfg.ScoreEventsExchange, "direct", true); err != nil {
		return err
	}
	if err := r.EnsureQueue(r.cfg.ScoreJobQueue, true); err != nil {
		return err
	}
	return r.BindQueue(r.cfg.ScoreJobQueue, r.cfg.ScoreEventsExchange, r.cfg.ScoreJobRoutingKey)
}

// ScoreEventsExchange 返回打分事件exchange名称
func (r *RabbitMQ) ScoreEventsExchange() string {
	return r.cfg.ScoreEventsExchange
}

// ScoreJobRoutingKey 返回打分任务路由键
func (r *RabbitMQ) ScoreJobRoutingKey() string {
	return r.cfg.ScoreJobRoutingKey
}

// 获取可用通道
func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			r.logger.Printf("创建新RabbitMQ通道失败: %v", err)
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

// 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}

	key := "exchange:" + exchangeName
	r.declaredMu.Lock()
	if r.declared[key] {
		r.declaredMu.Unlock()
		return nil
	}
	r.declaredMu.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		durable,
		false, // 自动删除
		false, // 内部专用
		false, // 非阻塞
		nil,
	)
	if err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}

	r.declaredMu.Lock()
	r.declared[key] = true
	r.declaredMu.Unlock()
	r.logger.Printf("已确保exchange存在: '%s'", exchangeName)
	return nil
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	key := "queue:" + queueName
	r.declaredMu.Lock()
	exists := r.declared[key]
	r.declaredMu.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if exists {
		// 已在本地缓存中，用被动声明验证队列仍然存在且参数匹配
		if _, err := ch.QueueDeclarePassive(queueName, durable, false, false, false, nil); err != nil {
			r.declaredMu.Lock()
			delete(r.declared, key)
			r.declaredMu.Unlock()
			return fmt.Errorf("被动声明队列 '%s' 失败 (可能不存在或参数不匹配): %w", queueName, err)
		}
		return nil
	}

	_, err := ch.QueueDeclare(
		queueName,
		durable,
		false, // 自动删除
		false, // 独占
		false, // 非阻塞
		nil,
	)
	if err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}

	r.declaredMu.Lock()
	r.declared[key] = true
	r.declaredMu.Unlock()
	r.logger.Printf("已确保队列存在: %s", queueName)
	return nil
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	key := fmt.Sprintf("binding:%s:%s:%s", exchangeName, queueName, routingKey)
	r.declaredMu.Lock()
	if r.declared[key] {
		r.declaredMu.Unlock()
		return nil
	}
	r.declaredMu.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("绑定队列到exchange失败: %w", err)
	}

	r.declaredMu.Lock()
	r.declared[key] = true
	r.declaredMu.Unlock()
	r.logger.Printf("已绑定队列 %s 到exchange %s，路由键: %s", queueName, exchangeName, routingKey)
	return nil
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	return ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // 强制
		false, // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// PublishScoreJob 将批量打分任务发布到打分队列，消息持久化
func (r *RabbitMQ) PublishScoreJob(ctx context.Context, job *ScoreJobMessage) error {
	if job == nil || job.BatchID == "" {
		return fmt.Errorf("打分任务消息缺少batch_id")
	}
	return r.PublishJSON(ctx, r.cfg.ScoreEventsExchange, r.cfg.ScoreJobRoutingKey, job, true)
}

// StartScoreJobConsumer 启动打分任务消费者。handler返回true时确认消息，
// 返回false时Nack并重新入队。返回的stop通道用于停止消费。
func (r *RabbitMQ) StartScoreJobConsumer(ctx context.Context, handler func(context.Context, *ScoreJobMessage) bool) (chan<- struct{}, error) {
	return r.startConsumer(ctx, r.cfg.ScoreJobQueue, r.cfg.PrefetchCount, func(msgCtx context.Context, body []byte) bool {
		var job ScoreJobMessage
		if err := json.Unmarshal(body, &job); err != nil {
			// 消息体损坏，重新入队只会无限循环，直接确认丢弃
			r.logger.Printf("打分任务消息解析失败，已丢弃: %v", err)
			return true
		}
		return handler(msgCtx, &job)
	})
}

// startConsumer 启动消费者处理函数
func (r *RabbitMQ) startConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) (chan struct{}, error) {
	stopCh := make(chan struct{})

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道")
	}

	if prefetchCount <= 0 {
		prefetchCount = 1
	}

	// 设置QoS，控制预取数量
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // 消费者标签，留空由server生成唯一标签
		false, // 自动确认
		false, // 独占
		false, // 非本地
		false, // 非阻塞
		nil,
	)
	if err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	go func() {
		defer r.putChannel(ch)
		defer r.logger.Printf("消费者已停止: %s", queueName)

		r.logger.Printf("消费者已启动，队列: %s, 预取数量: %d", queueName, prefetchCount)

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case delivery, ok := <-deliveries:
				if !ok {
					r.logger.Printf("RabbitMQ通道已关闭")
					return
				}

				if handler(ctx, delivery.Body) {
					if err := delivery.Ack(false); err != nil {
						r.logger.Printf("确认消息失败: %v", err)
					}
				} else {
					// 处理失败，拒绝并重新入队
					if err := delivery.Nack(false, true); err != nil {
						r.logger.Printf("拒绝消息失败: %v", err)
					}
				}
			}
		}
	}()

	return stopCh, nil
}
