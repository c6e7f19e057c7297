// Package payload converts between the mainframe's order dialects and the canonical order payload.
package payload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

var (
	externalIDKeys  = []string{"externalId", "external_id"}
	genericIDKeys   = []string{"id"}
	orderNumberKeys = []string{"orderNumber", "order_number", "Auftragsnummer"}
	belegnummerKeys = []string{"Belegnummer"}

	orderDateKeys = []string{"orderDate", "order_date", "Datum", "Belegdatum"}
	totalKeys     = []string{"total", "amountTotal", "Gesamtbetrag", "Summe"}

	customerKeys       = []string{"customer", "Kunde"}
	customerNumberKeys = []string{"number", "customerNumber", "Kundennummer", "Nr"}
	customerNameKeys   = []string{"name", "Name", "Firma"}
	customerEmailKeys  = []string{"email", "EMail", "E-Mail"}

	billingKeys  = []string{"billingAddress", "billing_address", "Rechnungsadresse"}
	deliveryKeys = []string{"deliveryAddress", "delivery_address", "shippingAddress", "Lieferadresse"}

	lineItemKeys      = []string{"lineItems", "line_items", "positions", "Positionen"}
	lineItemInnerKeys = []string{"lineItem", "position", "Position"}
	referenceKeys     = []string{"reference", "articleNumber", "Referenz", "Artikelnummer"}
	labelKeys         = []string{"label", "name", "Bezeichnung"}
	unitPriceKeys     = []string{"unitPrice", "price", "Preis", "Einzelpreis"}

	attachmentKeys      = []string{"attachments", "Anlagen"}
	attachmentInnerKeys = []string{"attachment", "Anlage"}
	fileNameKeys        = []string{"fileName", "file_name", "Dateiname"}
	fileContentKeys     = []string{"content", "Datei"}
)

// quantityPair names an ordered/shipped field pair; pairs are tried in order.
type quantityPair struct {
	ordered string
	shipped string
}

var quantityPairs = []quantityPair{
	{ordered: "MengeBestellt", shipped: "MengeGeliefert"},
	{ordered: "Bestellmenge", shipped: "GelieferteMenge"},
	{ordered: "orderedQuantity", shipped: "shippedQuantity"},
}

// genericQuantityKeys carry a single quantity used for both ordered and shipped.
var genericQuantityKeys = []string{"Menge", "quantity"}

// ResolveExternalID tries the explicit external id, the generic id, the order number and
// finally Belegnummer. The first non-empty value wins.
func ResolveExternalID(record Record) string {
	for _, keys := range [][]string{externalIDKeys, genericIDKeys, orderNumberKeys, belegnummerKeys} {
		if value := field(record, keys...); value != "" {
			return value
		}
	}
	return ""
}

// Normalize turns one mainframe or upstream order record into the canonical payload.
// Line items are never merged, even when they share an article reference.
func Normalize(record Record) (domain.CanonicalOrderPayload, error) {
	externalID := ResolveExternalID(record)
	if externalID == "" {
		return domain.CanonicalOrderPayload{}, fmt.Errorf("%w: order record has no identifier", domain.ErrValidation)
	}

	out := domain.CanonicalOrderPayload{
		ExternalID:  externalID,
		OrderNumber: field(record, append(append([]string{}, orderNumberKeys...), belegnummerKeys...)...),
		OrderDate:   field(record, orderDateKeys...),
		Total:       decimalOrZero(field(record, totalKeys...)),
		LineItems:   []domain.PayloadLineItem{},
	}

	if customer, ok := child(record, customerKeys...); ok {
		out.Customer = domain.PayloadCustomer{
			Number: field(customer, customerNumberKeys...),
			Name:   field(customer, customerNameKeys...),
			Email:  field(customer, customerEmailKeys...),
		}
	} else {
		out.Customer = domain.PayloadCustomer{
			Number: field(record, "customerNumber", "Kundennummer"),
			Name:   field(record, "customerName", "Kundenname"),
			Email:  field(record, "customerEmail", "email"),
		}
	}

	if billing, ok := child(record, billingKeys...); ok {
		out.BillingAddress = normalizeAddress(billing)
	}
	if delivery, ok := child(record, deliveryKeys...); ok {
		out.DeliveryAddress = normalizeAddress(delivery)
	}

	for _, line := range list(record, lineItemKeys, lineItemInnerKeys) {
		item, err := normalizeLineItem(line)
		if err != nil {
			return domain.CanonicalOrderPayload{}, fmt.Errorf("order %s: %w", externalID, err)
		}
		out.LineItems = append(out.LineItems, item)
	}

	attachments := make([]domain.Attachment, 0)
	for _, raw := range list(record, attachmentKeys, attachmentInnerKeys) {
		attachments = append(attachments, domain.Attachment{
			FileName: field(raw, fileNameKeys...),
			Content:  field(raw, fileContentKeys...),
		})
	}
	out.Attachments = PartitionAttachments(attachments)

	return out, nil
}

func normalizeAddress(record Record) *domain.PayloadAddress {
	name := field(record, "name", "Name")
	if name == "" {
		name = strings.TrimSpace(field(record, "firstName", "Vorname") + " " + field(record, "lastName", "Nachname"))
	}
	if name == "" {
		name = field(record, "company", "Firma")
	}

	return &domain.PayloadAddress{
		Name:    name,
		Street:  field(record, "street", "Strasse", "Straße"),
		Zipcode: field(record, "zipcode", "zip", "PLZ"),
		City:    field(record, "city", "Ort"),
		Country: field(record, "country", "Land"),
	}
}

func normalizeLineItem(record Record) (domain.PayloadLineItem, error) {
	ordered, shipped, err := quantities(record)
	if err != nil {
		return domain.PayloadLineItem{}, err
	}

	return domain.PayloadLineItem{
		Reference:       NormalizeArticleReference(field(record, referenceKeys...)),
		Label:           field(record, labelKeys...),
		OrderedQuantity: ordered,
		ShippedQuantity: shipped,
		UnitPrice:       decimalOrZero(field(record, unitPriceKeys...)),
	}, nil
}

func quantities(record Record) (float64, float64, error) {
	for _, pair := range quantityPairs {
		rawOrdered := field(record, pair.ordered)
		if rawOrdered == "" {
			continue
		}

		ordered, err := ParseDecimal(rawOrdered)
		if err != nil {
			return 0, 0, err
		}

		shipped := 0.0
		if rawShipped := field(record, pair.shipped); rawShipped != "" {
			if shipped, err = ParseDecimal(rawShipped); err != nil {
				return 0, 0, err
			}
		}
		return ordered, shipped, nil
	}

	if raw := field(record, genericQuantityKeys...); raw != "" {
		quantity, err := ParseDecimal(raw)
		if err != nil {
			return 0, 0, err
		}
		return quantity, quantity, nil
	}

	return 0, 0, nil
}

// SplitKeys returns the normalized references shared by more than one line item, sorted.
// Such lines are one position shipped in several parcels.
func SplitKeys(payload domain.CanonicalOrderPayload) []string {
	counts := make(map[string]int, len(payload.LineItems))
	for _, item := range payload.LineItems {
		counts[item.Reference.Normalized]++
	}

	keys := make([]string, 0)
	for key, count := range counts {
		if count > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
