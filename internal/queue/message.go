package queue

import (
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExportMessage is the broker payload asking a worker to export one order,
// or, on the dead-letter queue, reporting an export that gave up.
type ExportMessage struct {
	OrderID         string     `json:"orderId"`
	ExportID        string     `json:"exportId,omitempty"`
	CorrelationID   string     `json:"correlationId,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Attempts        int        `json:"attempts,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	Strategy        string     `json:"strategy,omitempty"`
	ResponseCode    *int       `json:"responseCode,omitempty"`
	ResponseMessage string     `json:"responseMessage,omitempty"`
	FailedAt        *time.Time `json:"failedAt,omitempty"`
}

func (m ExportMessage) Validate() error {
	if strings.TrimSpace(m.OrderID) == "" {
		return fmt.Errorf("orderId is required")
	}
	if m.Attempts < 0 {
		return fmt.Errorf("attempts must not be negative")
	}
	return nil
}

// MessageID identifies the publishing; the export id wins when present.
func (m ExportMessage) MessageID() string {
	if m.ExportID != "" {
		return m.ExportID
	}
	return m.OrderID
}

// Headers lets broker tooling route and filter dead letters without decoding the body.
func (m ExportMessage) Headers() amqp.Table {
	headers := amqp.Table{}
	if m.Strategy != "" {
		headers["x-export-strategy"] = m.Strategy
	}
	if m.Reason != "" {
		headers["x-export-reason"] = m.Reason
	}
	if m.Attempts > 0 {
		headers["x-export-attempts"] = int32(m.Attempts)
	}
	if m.ResponseCode != nil {
		headers["x-export-response-code"] = int32(*m.ResponseCode)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
