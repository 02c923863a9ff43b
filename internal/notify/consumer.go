package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/evfleet/station-simulator/internal/logger"
)

// RemoteCommand is an external remote-control request delivered over
// Kafka, the narrow surface a UI or fleet-orchestration service drives
// simulated stations through.
type RemoteCommand struct {
	StationId string          `json:"stationId"`
	Command   string          `json:"command"` // RemoteStartTransaction | RemoteStopTransaction | TriggerMessage
	Payload   json.RawMessage `json:"payload"`
}

// CommandHandler processes one RemoteCommand, routing it to the owning
// station's command queue exactly as if the central system had sent it.
type CommandHandler func(RemoteCommand)

// saramaConsumerGroup is the subset of sarama.ConsumerGroup the Consumer
// needs, narrowed so tests can inject a fake.
type saramaConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Errors() <-chan error
	Close() error
}

// Consumer reads RemoteCommand messages from a Kafka consumer group.
type Consumer struct {
	group   saramaConsumerGroup
	topic   string
	log     *logger.Logger
	handler CommandHandler
	cancel  context.CancelFunc
}

// NewConsumer builds a Consumer reading topic from brokers under groupID.
func NewConsumer(brokers []string, groupID, topic string, log *logger.Logger) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRange()
	cfg.Consumer.Group.Session.Timeout = 10 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	c := NewConsumerWithGroup(group, topic, log)
	go func() {
		for err := range group.Errors() {
			log.ErrorWithErr(err, "kafka consumer group error")
		}
	}()
	return c, nil
}

// NewConsumerWithGroup injects an already-constructed consumer group, used
// for dependency injection in tests.
func NewConsumerWithGroup(group saramaConsumerGroup, topic string, log *logger.Logger) *Consumer {
	return &Consumer{group: group, topic: topic, log: log}
}

// Start begins consuming in the background, invoking handler for each
// decoded RemoteCommand. MarkMessage is called regardless of decode
// success so a malformed message never blocks the partition.
func (c *Consumer) Start(handler CommandHandler) error {
	c.handler = handler
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
				c.log.ErrorWithErr(err, "kafka consume session ended")
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return nil
}

// Close stops consumption and closes the underlying consumer group.
func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var cmd RemoteCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			c.log.ErrorWithErr(err, "malformed remote command message")
			session.MarkMessage(msg, "")
			continue
		}
		c.handler(cmd)
		session.MarkMessage(msg, "")
	}
	return nil
}
