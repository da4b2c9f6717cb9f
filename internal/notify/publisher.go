// Package notify 在结算提交后对外发布订单事件。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"trading-ledger/internal/config"
	"trading-ledger/internal/order"
)

// EventOrderSettled 为订单结算事件类型。
const EventOrderSettled = "order_settled"

// OrderEvent 为发布到消息队列的订单事件。
type OrderEvent struct {
	Type        string              `json:"type"`
	Order       order.SecurityOrder `json:"order"`
	PublishedAt time.Time           `json:"publishedAt"`
}

// Publisher 发布已提交的订单。
type Publisher interface {
	PublishOrder(ctx context.Context, o order.SecurityOrder) error
	Close() error
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

func (NopPublisher) PublishOrder(context.Context, order.SecurityOrder) error { return nil }

func (NopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 以账户 ID 为键写入 Kafka，同一账户的事件落在同一分区。
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
	now    func() time.Time
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*KafkaPublisher)(nil)
)

// NewKafkaPublisher 创建 Kafka 发布器。
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           cfg.WriteTimeout,
	}
	return newKafkaPublisher(writer, cfg.Topic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
		now:    time.Now,
	}
}

// PublishOrder 发布一笔已结算订单。
func (p *KafkaPublisher) PublishOrder(ctx context.Context, o order.SecurityOrder) error {
	data, err := json.Marshal(OrderEvent{
		Type:        EventOrderSettled,
		Order:       o,
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: 序列化订单事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(o.AccountID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderSettled)},
			{Key: "status", Value: []byte(o.Status)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("发布订单事件失败",
			zap.String("topic", p.topic),
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
		return fmt.Errorf("notify: 发布订单事件失败: %w", err)
	}

	p.logger.Debug("订单事件已发布", zap.String("topic", p.topic), zap.Int64("order_id", o.ID))
	return nil
}

// Close 关闭底层 writer。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
