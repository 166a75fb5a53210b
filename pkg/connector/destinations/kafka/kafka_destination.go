// Package kafka publishes events to a Kafka topic with a sarama
// SyncProducer. Each message carries the JSON envelope as its value and the
// event host as its key, so one Grid Manager's records stay in one
// partition and keep their order.
package kafka

import (
	"context"
	"crypto/tls"
	"strconv"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/compression"
	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	"github.com/ajitpratap0/gridfeed/pkg/connector/destinations/envelope"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

// Type is the sink type this destination registers under
const Type = "kafka"

// Config holds the producer settings parsed from sink options
type Config struct {
	Brokers      []string
	Topic        string
	ClientID     string
	Acks         string
	Version      string
	Index        string
	BatchSize    int
	Retries      int
	Compression  compression.Algorithm
	TLS          bool
	TLSInsecure  bool
	SASLUsername string
	SASLPassword string
}

// ParseConfig reads sink options:
//   - brokers: comma separated host:port list (required)
//   - topic (required)
//   - client_id, default gridfeed
//   - acks: all, 1 or 0, default all
//   - version: Kafka protocol version such as 2.8.0
//   - index: index name added to every envelope
//   - batch_size: messages per SendMessages call, default 1
//   - retries: producer retry budget, default 3
//   - tls, tls_insecure_skip_verify
//   - sasl_username, sasl_password: SASL/PLAIN credentials
//
// Compression comes from the sink's compression setting.
func ParseConfig(sink config.SinkConfig) (Config, error) {
	cfg := Config{
		Topic:        sink.Option("topic", ""),
		ClientID:     sink.Option("client_id", "gridfeed"),
		Acks:         sink.Option("acks", "all"),
		Version:      sink.Option("version", ""),
		Index:        sink.Option("index", ""),
		BatchSize:    1,
		Retries:      3,
		SASLUsername: sink.Option("sasl_username", ""),
		SASLPassword: sink.Option("sasl_password", ""),
	}
	for _, b := range strings.Split(sink.Option("brokers", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Brokers = append(cfg.Brokers, b)
		}
	}
	if len(cfg.Brokers) == 0 {
		return cfg, errors.New(errors.ErrorTypeConfig, "kafka sink requires the brokers option")
	}
	if cfg.Topic == "" {
		return cfg, errors.New(errors.ErrorTypeConfig, "kafka sink requires the topic option")
	}

	var err error
	if cfg.Compression, err = compression.Parse(sink.Compression); err != nil {
		return cfg, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka sink")
	}
	if v := sink.Option("batch_size", ""); v != "" {
		if cfg.BatchSize, err = strconv.Atoi(v); err != nil || cfg.BatchSize <= 0 {
			return cfg, errors.Newf(errors.ErrorTypeConfig, "invalid kafka batch_size %q", v)
		}
	}
	if v := sink.Option("retries", ""); v != "" {
		if cfg.Retries, err = strconv.Atoi(v); err != nil || cfg.Retries < 0 {
			return cfg, errors.Newf(errors.ErrorTypeConfig, "invalid kafka retries %q", v)
		}
	}
	if v := sink.Option("tls", ""); v != "" {
		if cfg.TLS, err = config.ParseFlag(v); err != nil {
			return cfg, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka tls")
		}
	}
	if v := sink.Option("tls_insecure_skip_verify", ""); v != "" {
		if cfg.TLSInsecure, err = config.ParseFlag(v); err != nil {
			return cfg, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka tls_insecure_skip_verify")
		}
	}
	return cfg, nil
}

// saramaConfig translates cfg into a producer configuration
func saramaConfig(cfg Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID

	switch cfg.Acks {
	case "all", "-1":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid kafka acks %q", cfg.Acks)
	}

	sc.Producer.Retry.Max = cfg.Retries
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	// A single in-flight request keeps retried batches in order
	sc.Net.MaxOpenRequests = 1

	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka version")
		}
		sc.Version = v
	}

	switch cfg.Compression {
	case compression.None:
		sc.Producer.Compression = sarama.CompressionNone
	case compression.Gzip:
		sc.Producer.Compression = sarama.CompressionGZIP
	case compression.Snappy:
		sc.Producer.Compression = sarama.CompressionSnappy
	case compression.LZ4:
		sc.Producer.Compression = sarama.CompressionLZ4
	case compression.Zstd:
		sc.Producer.Compression = sarama.CompressionZSTD
		if !sc.Version.IsAtLeast(sarama.V2_1_0_0) {
			sc.Version = sarama.V2_1_0_0
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "kafka does not support %s compression", cfg.Compression)
	}

	if cfg.TLS {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{InsecureSkipVerify: cfg.TLSInsecure} //nolint:gosec // operator opt-in
	}
	if cfg.SASLUsername != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = cfg.SASLUsername
		sc.Net.SASL.Password = cfg.SASLPassword
	}

	if err := sc.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka producer configuration")
	}
	return sc, nil
}

// Destination publishes envelopes to a topic
type Destination struct {
	cfg      Config
	producer sarama.SyncProducer
	logger   *zap.Logger

	mu        sync.Mutex
	pending   []*sarama.ProducerMessage
	closed    bool
	published int64
}

var _ core.Destination = (*Destination)(nil)

// NewDestination connects a SyncProducer to the configured brokers
func NewDestination(sink config.SinkConfig, logger *zap.Logger) (*Destination, error) {
	cfg, err := ParseConfig(sink)
	if err != nil {
		return nil, err
	}
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create kafka producer").
			WithDetail("brokers", strings.Join(cfg.Brokers, ","))
	}
	return newDestination(cfg, producer, logger), nil
}

func newDestination(cfg Config, producer sarama.SyncProducer, logger *zap.Logger) *Destination {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Destination{
		cfg:      cfg,
		producer: producer,
		logger:   logger.With(zap.String("topic", cfg.Topic)),
		pending:  make([]*sarama.ProducerMessage, 0, cfg.BatchSize),
	}
}

func (d *Destination) buildMessage(event *core.Event) (*sarama.ProducerMessage, error) {
	value, err := envelope.Marshal(event, d.cfg.Index)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode event")
	}
	return &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(event.Host),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("source"), Value: []byte(event.Source)},
			{Key: []byte("sourcetype"), Value: []byte(event.SourceType)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: event.Time,
	}, nil
}

// Write queues the event and publishes once batch_size messages are pending
func (d *Destination) Write(_ context.Context, event *core.Event) error {
	msg, err := d.buildMessage(event)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeInternal, "kafka destination is closed")
	}
	d.pending = append(d.pending, msg)
	if len(d.pending) >= d.cfg.BatchSize {
		return d.flush()
	}
	return nil
}

func (d *Destination) flush() error {
	if len(d.pending) == 0 {
		return nil
	}
	var err error
	if len(d.pending) == 1 {
		_, _, err = d.producer.SendMessage(d.pending[0])
	} else {
		err = d.producer.SendMessages(d.pending)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish to kafka").
			WithDetail("messages", len(d.pending))
	}
	d.published += int64(len(d.pending))
	d.pending = d.pending[:0]
	return nil
}

// Close publishes pending messages and closes the producer
func (d *Destination) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	flushErr := d.flush()
	if err := d.producer.Close(); err != nil && flushErr == nil {
		flushErr = errors.Wrap(err, errors.ErrorTypeConnection, "failed to close kafka producer")
	}
	d.logger.Debug("kafka destination closed", zap.Int64("published", d.published))
	return flushErr
}
