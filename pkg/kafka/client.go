// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"uphub-go/internal/config"
	"uphub-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// UploadEvent 是文件上传完成后发布到 Kafka 的事件结构。
// 下游系统（如统计、审计）按需消费，本服务不包含消费者。
type UploadEvent struct {
	UserID   uint   `json:"user_id"`
	FileName string `json:"file_name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	if !cfg.Enabled {
		log.Info("Kafka 未启用，跳过生产者初始化")
		return
	}
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceUploadEvent 发送一个上传完成事件到 Kafka。
// 生产者未初始化（未启用）时直接返回 nil。
func ProduceUploadEvent(ctx context.Context, event UploadEvent) error {
	if producer == nil {
		return nil
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.FileName),
		Value: eventBytes,
	})
}

// Close 关闭生产者连接，在服务停机时调用。
func Close() {
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("关闭 Kafka 生产者失败", err)
		}
	}
}
