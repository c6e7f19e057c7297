package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

// ExportRecordModel is the persistence model for the export_records table.
type ExportRecordModel struct {
	ID              string              `gorm:"type:uuid;primaryKey"`
	OrderID         string              `gorm:"type:uuid;not null"`
	Status          domain.ExportStatus `gorm:"type:varchar(32);not null"`
	Strategy        domain.Strategy     `gorm:"type:varchar(32);not null"`
	Attempts        int                 `gorm:"not null"`
	RequestPayload  string              `gorm:"type:text;not null"`
	ResponseCode    *int                `gorm:"type:int"`
	ResponseMessage *string             `gorm:"type:text"`
	CorrelationID   string              `gorm:"type:varchar(36);not null"`
	LastError       *string             `gorm:"type:text"`
	NextRetryAt     *time.Time          `gorm:"type:timestamptz"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ExportRecordModel) TableName() string {
	return "export_records"
}

// CustomerColumns is embedded on orders with the customer_ prefix.
type CustomerColumns struct {
	Number    string `gorm:"type:varchar(64)"`
	FirstName string `gorm:"type:varchar(255)"`
	LastName  string `gorm:"type:varchar(255)"`
	Company   string `gorm:"type:varchar(255)"`
	Email     string `gorm:"type:varchar(255)"`
}

// OrderModel is the persistence model for orders. UpdatedAt is the optimistic lock token and is
// only ever written explicitly.
type OrderModel struct {
	ID              string                 `gorm:"type:uuid;primaryKey"`
	OrderNumber     string                 `gorm:"type:varchar(64);not null"`
	OrderDate       time.Time              `gorm:"type:timestamptz"`
	Status          int                    `gorm:"not null"`
	StatusChangedBy string                 `gorm:"type:varchar(255)"`
	Customer        CustomerColumns        `gorm:"embedded;embeddedPrefix:customer_"`
	RetryQueue      datatypes.JSON         `gorm:"type:jsonb"`
	Addresses       []OrderAddressModel    `gorm:"foreignKey:OrderID"`
	LineItems       []OrderLineItemModel   `gorm:"foreignKey:OrderID"`
	Attachments     []OrderAttachmentModel `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (OrderModel) TableName() string {
	return "orders"
}

const (
	addressKindBilling  = "billing"
	addressKindDelivery = "delivery"
)

type OrderAddressModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	OrderID   string `gorm:"type:uuid;not null"`
	Kind      string `gorm:"type:varchar(16);not null"`
	Company   string `gorm:"type:varchar(255)"`
	FirstName string `gorm:"type:varchar(255)"`
	LastName  string `gorm:"type:varchar(255)"`
	Street    string `gorm:"type:varchar(255)"`
	Zipcode   string `gorm:"type:varchar(32)"`
	City      string `gorm:"type:varchar(255)"`
	Country   string `gorm:"type:varchar(64)"`
}

func (OrderAddressModel) TableName() string {
	return "order_addresses"
}

type OrderLineItemModel struct {
	ID         string         `gorm:"type:uuid;primaryKey"`
	OrderID    string         `gorm:"type:uuid;not null"`
	Position   int            `gorm:"not null"`
	Reference  string         `gorm:"type:varchar(128);not null"`
	Label      string         `gorm:"type:varchar(255)"`
	Quantity   int            `gorm:"not null"`
	UnitPrice  float64        `gorm:"type:numeric(14,4);not null"`
	CustomData datatypes.JSON `gorm:"type:jsonb"`
}

func (OrderLineItemModel) TableName() string {
	return "order_line_items"
}

type OrderAttachmentModel struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	OrderID  string `gorm:"type:uuid;not null"`
	FileName string `gorm:"type:varchar(255);not null"`
	Content  string `gorm:"type:text;not null"`
}

func (OrderAttachmentModel) TableName() string {
	return "order_attachments"
}

// ExternalOrderModel is the persistence model for orders imported from the mainframe.
type ExternalOrderModel struct {
	ExternalID    string         `gorm:"type:varchar(128);primaryKey"`
	OrderNumber   string         `gorm:"type:varchar(64)"`
	CustomerName  string         `gorm:"type:varchar(255)"`
	CustomerEmail string         `gorm:"type:varchar(255)"`
	Total         float64        `gorm:"type:numeric(14,4)"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null"`
	ImportedAt    time.Time      `gorm:"type:timestamptz;not null"`
	UpdatedAt     time.Time
}

func (ExternalOrderModel) TableName() string {
	return "external_orders"
}

func exportRecordModelFromDomain(r *domain.ExportRecord) *ExportRecordModel {
	if r == nil {
		return nil
	}

	return &ExportRecordModel{
		ID:              r.ID,
		OrderID:         r.OrderID,
		Status:          r.Status,
		Strategy:        r.Strategy,
		Attempts:        r.Attempts,
		RequestPayload:  r.RequestPayload,
		ResponseCode:    r.ResponseCode,
		ResponseMessage: r.ResponseMessage,
		CorrelationID:   r.CorrelationID,
		LastError:       r.LastError,
		NextRetryAt:     r.NextRetryAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func exportRecordModelToDomain(m *ExportRecordModel) *domain.ExportRecord {
	if m == nil {
		return nil
	}

	return &domain.ExportRecord{
		ID:              m.ID,
		OrderID:         m.OrderID,
		Status:          m.Status,
		Strategy:        m.Strategy,
		Attempts:        m.Attempts,
		RequestPayload:  m.RequestPayload,
		ResponseCode:    m.ResponseCode,
		ResponseMessage: m.ResponseMessage,
		CorrelationID:   m.CorrelationID,
		LastError:       m.LastError,
		NextRetryAt:     m.NextRetryAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func orderModelToDomain(m *OrderModel) (*domain.Order, error) {
	if m == nil {
		return nil, nil
	}

	order := &domain.Order{
		ID:              m.ID,
		OrderNumber:     m.OrderNumber,
		OrderDate:       m.OrderDate,
		Status:          domain.OrderStatus(m.Status),
		StatusChangedBy: m.StatusChangedBy,
		Customer: domain.Customer{
			Number:    m.Customer.Number,
			FirstName: m.Customer.FirstName,
			LastName:  m.Customer.LastName,
			Company:   m.Customer.Company,
			Email:     m.Customer.Email,
		},
		LineItems:   make([]domain.LineItem, 0, len(m.LineItems)),
		Attachments: make([]domain.Attachment, 0, len(m.Attachments)),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}

	queue, err := decodeRetryQueue(m.RetryQueue)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", m.ID, err)
	}
	order.RetryQueue = queue

	for i := range m.Addresses {
		address := addressModelToDomain(&m.Addresses[i])
		switch m.Addresses[i].Kind {
		case addressKindBilling:
			order.BillingAddress = address
		case addressKindDelivery:
			order.DeliveryAddress = address
		}
	}

	for _, item := range m.LineItems {
		customData := map[string]string{}
		if len(item.CustomData) > 0 {
			if err := json.Unmarshal(item.CustomData, &customData); err != nil {
				return nil, fmt.Errorf("order %s line %d custom data: %w", m.ID, item.Position, err)
			}
		}
		order.LineItems = append(order.LineItems, domain.LineItem{
			ID:         item.ID,
			Position:   item.Position,
			Reference:  item.Reference,
			Label:      item.Label,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			CustomData: customData,
		})
	}

	for _, attachment := range m.Attachments {
		order.Attachments = append(order.Attachments, domain.Attachment{
			FileName: attachment.FileName,
			Content:  attachment.Content,
		})
	}

	return order, nil
}

func addressModelToDomain(m *OrderAddressModel) *domain.Address {
	return &domain.Address{
		Company:   m.Company,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Street:    m.Street,
		Zipcode:   m.Zipcode,
		City:      m.City,
		Country:   m.Country,
	}
}

func decodeRetryQueue(raw datatypes.JSON) ([]domain.RetryQueueEntry, error) {
	queue := []domain.RetryQueueEntry{}
	if len(raw) == 0 || string(raw) == "null" {
		return queue, nil
	}
	if err := json.Unmarshal(raw, &queue); err != nil {
		return nil, fmt.Errorf("decode retry queue: %w", err)
	}
	return queue, nil
}

func encodeRetryQueue(queue []domain.RetryQueueEntry) (datatypes.JSON, error) {
	if queue == nil {
		queue = []domain.RetryQueueEntry{}
	}
	raw, err := json.Marshal(queue)
	if err != nil {
		return nil, fmt.Errorf("encode retry queue: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func externalOrderModelFromDomain(o *domain.ExternalOrder) (*ExternalOrderModel, error) {
	if o == nil {
		return nil, nil
	}

	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode external order payload: %w", err)
	}

	return &ExternalOrderModel{
		ExternalID:    o.ExternalID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Total:         o.Total,
		Payload:       datatypes.JSON(payload),
		ImportedAt:    o.ImportedAt,
		UpdatedAt:     o.UpdatedAt,
	}, nil
}

func externalOrderModelToDomain(m *ExternalOrderModel) (*domain.ExternalOrder, error) {
	if m == nil {
		return nil, nil
	}

	out := &domain.ExternalOrder{
		ExternalID:    m.ExternalID,
		OrderNumber:   m.OrderNumber,
		CustomerName:  m.CustomerName,
		CustomerEmail: m.CustomerEmail,
		Total:         m.Total,
		ImportedAt:    m.ImportedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &out.Payload); err != nil {
			return nil, fmt.Errorf("decode external order payload: %w", err)
		}
	}
	return out, nil
}
