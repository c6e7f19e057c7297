package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxExportAttempts is the retry budget of one export lineage.
const MaxExportAttempts = 5

// ExportStatus represents the lifecycle state of an export record.
type ExportStatus string

const (
	ExportStatusProcessing      ExportStatus = "processing"
	ExportStatusSent            ExportStatus = "sent"
	ExportStatusFailed          ExportStatus = "failed"
	ExportStatusRetryScheduled  ExportStatus = "retry_scheduled"
	ExportStatusFailedPermanent ExportStatus = "failed_permanent"
)

func (s ExportStatus) String() string { return string(s) }

func (s ExportStatus) IsValid() bool {
	switch s {
	case ExportStatusProcessing, ExportStatusSent, ExportStatusFailed,
		ExportStatusRetryScheduled, ExportStatusFailedPermanent:
		return true
	}
	return false
}

// IsTerminal reports whether a record in this state must not be mutated anymore.
func (s ExportStatus) IsTerminal() bool {
	return s == ExportStatusSent || s == ExportStatusFailedPermanent
}

// Strategy is the transport used to hand a document to the mainframe.
type Strategy string

const (
	StrategyDirectPost    Strategy = "direct_post"
	StrategySignedURLPull Strategy = "signed_url_pull"
)

func (s Strategy) String() string { return string(s) }

func (s Strategy) IsValid() bool {
	switch s {
	case StrategyDirectPost, StrategySignedURLPull:
		return true
	}
	return false
}

func ParseStrategyFromString(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid export strategy %q", ErrValidation, s)
	}
	return st, nil
}

// ExportRecord is one attempt lineage of sending an order to the mainframe.
type ExportRecord struct {
	ID              string
	OrderID         string
	Status          ExportStatus
	Strategy        Strategy
	Attempts        int
	RequestPayload  string
	ResponseCode    *int
	ResponseMessage *string
	CorrelationID   string
	LastError       *string
	NextRetryAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExportStatusView is the read-only projection polled by operator UIs.
type ExportStatusView struct {
	ExportID        string
	OrderID         string
	Status          ExportStatus
	Strategy        Strategy
	Attempts        int
	ResponseCode    *int
	ResponseMessage *string
	LastError       *string
	NextRetryAt     *time.Time
	CorrelationID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r *ExportRecord) View() ExportStatusView {
	return ExportStatusView{
		ExportID:        r.ID,
		OrderID:         r.OrderID,
		Status:          r.Status,
		Strategy:        r.Strategy,
		Attempts:        r.Attempts,
		ResponseCode:    r.ResponseCode,
		ResponseMessage: r.ResponseMessage,
		LastError:       r.LastError,
		NextRetryAt:     r.NextRetryAt,
		CorrelationID:   r.CorrelationID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// RetryBackoffStep is the linear backoff unit: the nth scheduled retry waits n steps.
const RetryBackoffStep = 5 * time.Minute

// ScheduleRetry applies the failure transition. The attempt counter is incremented; once it
// reaches MaxExportAttempts the record becomes failed_permanent without a next retry time.
func (r *ExportRecord) ScheduleRetry(now time.Time, lastError *string) {
	r.Attempts++
	r.LastError = lastError
	r.UpdatedAt = now

	if r.Attempts >= MaxExportAttempts {
		r.Status = ExportStatusFailedPermanent
		r.NextRetryAt = nil
		return
	}

	next := now.Add(time.Duration(r.Attempts) * RetryBackoffStep)
	r.Status = ExportStatusRetryScheduled
	r.NextRetryAt = &next
}

// ClaimLease bounds how long a record may stay in processing. After it, the delivery is
// presumed lost and the record is due for retry again.
const ClaimLease = 30 * time.Minute

// IsStaleClaim reports whether a processing record outlived its lease.
func (r *ExportRecord) IsStaleClaim(now time.Time) bool {
	return r.Status == ExportStatusProcessing && !r.UpdatedAt.Add(ClaimLease).After(now)
}

// IsDueForRetry reports whether the retry scanner should pick the record up at now.
func (r *ExportRecord) IsDueForRetry(now time.Time) bool {
	if r.Attempts >= MaxExportAttempts {
		return false
	}
	if r.Status == ExportStatusRetryScheduled {
		return r.NextRetryAt != nil && !r.NextRetryAt.After(now)
	}
	return r.IsStaleClaim(now)
}
