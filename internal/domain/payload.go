package domain

// CanonicalOrderPayload is the dialect-free shape of an order exchanged with the mainframe.
type CanonicalOrderPayload struct {
	ExternalID      string                `json:"externalId"`
	OrderNumber     string                `json:"orderNumber,omitempty"`
	OrderDate       string                `json:"orderDate,omitempty"`
	Customer        PayloadCustomer       `json:"customer"`
	BillingAddress  *PayloadAddress       `json:"billingAddress,omitempty"`
	DeliveryAddress *PayloadAddress       `json:"deliveryAddress,omitempty"`
	LineItems       []PayloadLineItem     `json:"lineItems"`
	Total           float64               `json:"total"`
	Attachments     PartitionedAttachment `json:"attachments"`
}

type PayloadCustomer struct {
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

type PayloadAddress struct {
	Name    string `json:"name,omitempty"`
	Street  string `json:"street,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// ArticleReference is a normalized article/position reference, e.g. "ABC 123.01".
type ArticleReference struct {
	Base       string `json:"base"`
	Variant    string `json:"variant"`
	Normalized string `json:"normalized"`
}

type PayloadLineItem struct {
	Reference       ArticleReference `json:"reference"`
	Label           string           `json:"label,omitempty"`
	OrderedQuantity float64          `json:"orderedQuantity"`
	ShippedQuantity float64          `json:"shippedQuantity"`
	UnitPrice       float64          `json:"unitPrice"`
}

// InlineAttachment keeps its base64 content embedded in the payload.
type InlineAttachment struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// OutOfBandAttachment exceeds the inline threshold and needs a separate transfer path.
type OutOfBandAttachment struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
}

type PartitionedAttachment struct {
	Inline    []InlineAttachment    `json:"inline"`
	OutOfBand []OutOfBandAttachment `json:"outOfBand"`
}
