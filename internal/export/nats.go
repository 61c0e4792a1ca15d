package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// DefaultSubject receives review results when none is configured
const DefaultSubject = "audit.review.results"

// publisher is the subset of *nats.Conn used for publication
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// ResultMessage is the payload of one published review result
type ResultMessage struct {
	RunID            string             `json:"run_id"`
	ComplianceStatus string             `json:"compliance_status"`
	Result           model.ReviewResult `json:"result"`
}

// NATSPublisher publishes review results, one message per report
type NATSPublisher struct {
	conn    publisher
	close   func()
	subject string
	logger  *slog.Logger
}

// DialNATS connects to a NATS server
func DialNATS(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("auditreview"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := NewNATSPublisher(nc, subject, logger)
	p.close = nc.Close
	return p, nil
}

// NewNATSPublisher wraps an existing connection
func NewNATSPublisher(conn publisher, subject string, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// Subject returns the subject results are published on
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Publish sends every result and flushes. It stops at the first failure.
func (p *NATSPublisher) Publish(ctx context.Context, runID string, results []model.ReviewResult) error {
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before publish: %w", err)
		}

		data, err := json.Marshal(ResultMessage{RunID: runID, ComplianceStatus: r.ComplianceStatus(), Result: r})
		if err != nil {
			return fmt.Errorf("marshal result %s: %w", r.ReportID, err)
		}
		if err := p.conn.Publish(p.subject, data); err != nil {
			return fmt.Errorf("publish result %s: %w", r.ReportID, err)
		}
	}

	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush NATS: %w", err)
	}

	p.logger.Info("results published", "subject", p.subject, "count", len(results), "run_id", runID)
	return nil
}

// Close releases a connection opened by DialNATS
func (p *NATSPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
