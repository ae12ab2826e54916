// Package ingest consumes policy export rows streamed by collectors
// over Kafka, as an alternative to file-based CSV exports.
package ingest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"fwlens/internal/config"
	"fwlens/internal/schema"
)

// PolicyRow is the wire format collectors publish: one JSON object per
// exported rule, keyed by the export's column names.
type PolicyRow struct {
	Enable      string `json:"enable"`
	Action      string `json:"action"`
	Source      string `json:"source"`
	User        string `json:"user,omitempty"`
	Destination string `json:"destination"`
	Service     string `json:"service"`
	Application string `json:"application,omitempty"`
	Category    string `json:"category,omitempty"`
	Vsys        string `json:"vsys,omitempty"`
	RuleName    string `json:"rule_name"`
	Description string `json:"description,omitempty"`
	Vendor      string `json:"vendor"`
}

// KafkaSource reads streamed policy rows from a Kafka topic.
type KafkaSource struct {
	reader    *kafka.Reader
	validator *schema.Validator
	logger    *slog.Logger
}

// NewKafkaSource creates a consumer for streamed policy rows.
func NewKafkaSource(cfg config.StreamConfig, logger *slog.Logger) (*KafkaSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("ingest: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("ingest: topic is required")
	}

	dialer, err := buildDialer(cfg)
	if err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.Topic,
		Dialer:   dialer,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})

	return &KafkaSource{
		reader:    reader,
		validator: schema.NewValidator(),
		logger:    logger,
	}, nil
}

// Fetch reads up to max streamed rows and maps them onto policy
// records. Rows that fail to decode or validate are logged and
// skipped; the stream keeps its position either way since offsets are
// committed by the consumer group.
func (s *KafkaSource) Fetch(ctx context.Context, max int) ([]*schema.PolicyRecord, error) {
	var records []*schema.PolicyRecord

	for len(records) < max {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return records, fmt.Errorf("failed to read policy row: %w", err)
		}

		var row PolicyRow
		if err := json.Unmarshal(msg.Value, &row); err != nil {
			s.logger.Warn("skipping undecodable policy row",
				"topic", msg.Topic, "partition", msg.Partition,
				"offset", msg.Offset, "error", err)
			continue
		}

		rec := row.Record()
		if err := s.validator.ValidateRecord(rec); err != nil {
			s.logger.Warn("dropping invalid streamed row",
				"offset", msg.Offset, "rule", row.RuleName, "error", err)
			continue
		}
		records = append(records, rec)
	}

	s.logger.Info("streamed policy rows fetched", "records", len(records))
	return records, nil
}

// Record maps a wire row onto a policy record.
func (r PolicyRow) Record() *schema.PolicyRecord {
	return &schema.PolicyRecord{
		Enabled:     r.Enable == "Y",
		RawAction:   r.Action,
		Action:      schema.ParseAction(r.Action),
		Source:      r.Source,
		User:        r.User,
		Destination: r.Destination,
		Service:     r.Service,
		Application: r.Application,
		Category:    r.Category,
		Vsys:        r.Vsys,
		RuleName:    r.RuleName,
		Description: r.Description,
		Vendor:      schema.Vendor(r.Vendor),
		Usage:       schema.UsageUnknown,
	}
}

// Close shuts down the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// buildDialer returns a dialer with TLS and SASL applied per the
// stream configuration.
func buildDialer(cfg config.StreamConfig) (*kafka.Dialer, error) {
	dialer := &kafka.Dialer{
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}

	if cfg.TLSEnabled || cfg.SecurityProtocol == "SSL" || cfg.SecurityProtocol == "SASL_SSL" {
		if cfg.TLSSkipVerify {
			slog.Warn("SECURITY WARNING: TLS certificate verification is disabled for the policy stream")
		}
		dialer.TLS = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}
	}

	if cfg.SecurityProtocol == "SASL_PLAINTEXT" || cfg.SecurityProtocol == "SASL_SSL" {
		mechanism, err := buildSASLMechanism(cfg)
		if err != nil {
			return nil, fmt.Errorf("ingest: failed to configure SASL: %w", err)
		}
		dialer.SASLMechanism = mechanism
	}

	return dialer, nil
}

// buildSASLMechanism returns the configured SASL mechanism.
func buildSASLMechanism(cfg config.StreamConfig) (sasl.Mechanism, error) {
	if cfg.SASLUsername == "" || cfg.SASLPassword == "" {
		return nil, errors.New("SASL username and password are required")
	}
	switch cfg.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASLMechanism)
	}
}
