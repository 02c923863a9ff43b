// Package notify bridges station lifecycle/performance events and external
// remote-control requests to Kafka: an async producer publishes every
// station event to an upstream topic, and a consumer group accepts remote
// commands from a downstream one.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/station"
)

// EventEnvelope is the stable JSON wire shape published for every station
// lifecycle/performance event (started, stopped, updated,
// performanceStatistics).
type EventEnvelope struct {
	EventType string      `json:"eventType"`
	StationId string      `json:"stationId"`
	PodID     string      `json:"podId"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Producer publishes station.Event values to a Kafka topic.
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	podID    string
	log      *logger.Logger
}

// ProducerConfig configures the underlying sarama async producer.
type ProducerConfig struct {
	RetryMax        int
	ReturnSuccesses bool
	FlushFrequency  time.Duration
}

// NewProducer builds a Producer publishing to topic on brokers.
func NewProducer(brokers []string, topic, podID string, cfg ProducerConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Compression = sarama.CompressionSnappy
	saramaCfg.Producer.Flush.Frequency = cfg.FlushFrequency
	saramaCfg.Producer.Retry.Max = cfg.RetryMax
	saramaCfg.Producer.Return.Successes = cfg.ReturnSuccesses
	saramaCfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &Producer{producer: producer, topic: topic, podID: podID, log: log}
	go p.handleSuccesses()
	go p.handleErrors()
	return p, nil
}

// PublishEvent encodes ev as an EventEnvelope and enqueues it, keyed by
// station id so a station's events land on one partition in order.
func (p *Producer) PublishEvent(ev station.Event) error {
	envelope := EventEnvelope{
		EventType: string(ev.Kind),
		StationId: ev.StationId,
		PodID:     p.podID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   ev.Data,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic:    p.topic,
		Key:      sarama.StringEncoder(ev.StationId),
		Value:    sarama.ByteEncoder(data),
		Metadata: ev.Kind,
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}

func (p *Producer) handleSuccesses() {
	for msg := range p.producer.Successes() {
		kind, _ := msg.Metadata.(station.EventKind)
		p.log.Debugf("published %s event for %s to kafka", kind, msg.Key)
	}
}

func (p *Producer) handleErrors() {
	for err := range p.producer.Errors() {
		p.log.ErrorWithErr(err, "failed to publish station event to kafka")
	}
}
