package domain

import (
	"fmt"
	"time"
)

// OrderStatus is the numeric local order state the mainframe integration reacts to.
type OrderStatus int

const (
	OrderStatusReleased              OrderStatus = 8
	OrderStatusCancellationRequested OrderStatus = 9
)

// IsWritable reports whether the status writer may set this status.
func (s OrderStatus) IsWritable() bool {
	return s == OrderStatusReleased || s == OrderStatusCancellationRequested
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusReleased:
		return "released"
	case OrderStatusCancellationRequested:
		return "cancellation_requested"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Order is the local platform order with the associations the export needs.
type Order struct {
	ID              string
	OrderNumber     string
	OrderDate       time.Time
	Status          OrderStatus
	StatusChangedBy string
	Customer        Customer
	BillingAddress  *Address
	DeliveryAddress *Address
	LineItems       []LineItem
	Attachments     []Attachment
	RetryQueue      []RetryQueueEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Customer struct {
	Number    string
	FirstName string
	LastName  string
	Company   string
	Email     string
}

type Address struct {
	Company   string
	FirstName string
	LastName  string
	Street    string
	Zipcode   string
	City      string
	Country   string
}

type LineItem struct {
	ID         string
	Position   int
	Reference  string
	Label      string
	Quantity   int
	UnitPrice  float64
	CustomData map[string]string
}

// Attachment holds base64 encoded file content.
type Attachment struct {
	FileName string
	Content  string
}

// RetryQueueState is the state of an advisory retry-queue entry.
type RetryQueueState string

const (
	RetryQueueStatePending RetryQueueState = "pending"
	RetryQueueStateDone    RetryQueueState = "done"
)

// RetryQueueEntry is one advisory entry of an order's durable retry queue.
type RetryQueueEntry struct {
	ID           string          `json:"id"`
	TargetStatus OrderStatus     `json:"targetStatus"`
	Reason       string          `json:"reason"`
	Source       string          `json:"source"`
	Attempts     int             `json:"attempts"`
	State        RetryQueueState `json:"state"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// ExternalOrder is an order entered on the mainframe and imported into the platform.
type ExternalOrder struct {
	ExternalID    string
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	Total         float64
	Payload       CanonicalOrderPayload
	ImportedAt    time.Time
	UpdatedAt     time.Time
}
