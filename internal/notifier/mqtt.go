package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/config"
	"domus-rmm-sync/internal/models"
)

// MQTTNotifier 通过 MQTT 发布状态变化事件（本地部署可选传输）
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTNotifier 创建 MQTT 发布器
func NewMQTTNotifier(cfg *config.MQTTConfig, topic string, logger *zap.Logger) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTNotifier{
		client: client,
		topic:  topic,
		qos:    cfg.QoS,
		logger: logger,
	}, nil
}

// PublishStatusChange 发布状态变化事件到 MQTT 主题
func (n *MQTTNotifier) PublishStatusChange(ctx context.Context, event models.AlertStatusChange) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status change event: %w", err)
	}

	token := n.client.Publish(n.topic, n.qos, false, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", n.topic, token.Error())
	}

	n.logger.Debug("Published alert status change",
		zap.String("topic", n.topic),
		zap.String("alert_id", event.AlertID),
		zap.String("new_status", string(event.NewStatus)),
	)

	return nil
}

// Close 断开 MQTT 连接
func (n *MQTTNotifier) Close() error {
	n.client.Disconnect(250) // 250ms 等待时间
	return nil
}
