package payload

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/mainframe"
)

// ErrDocumentIncomplete is returned when a mandatory node of the order document is missing.
var ErrDocumentIncomplete = errors.New("order document incomplete")

const documentDateLayout = "2006-01-02"

// sizeKeys are read from a line item's custom data, in order.
var sizeKeys = []string{"size", "gr", "variant"}

// The field order of these structs is the element order the mainframe expects.
type orderDocument struct {
	XMLName       xml.Name           `xml:"Auftrag"`
	Referenz      *string            `xml:"Referenz"`
	Datum         *string            `xml:"Datum"`
	Kunde         *documentCustomer  `xml:"Kunde"`
	Lieferadresse *documentAddress   `xml:"Lieferadresse"`
	Positionen    *documentPositions `xml:"Positionen"`
	Anlagen       *documentFiles     `xml:"Anlagen"`
}

type documentCustomer struct {
	Kundennummer string `xml:"Kundennummer"`
	Firma        string `xml:"Firma"`
	Vorname      string `xml:"Vorname"`
	Nachname     string `xml:"Nachname"`
	Email        string `xml:"Email"`
}

type documentAddress struct {
	Firma    string `xml:"Firma"`
	Vorname  string `xml:"Vorname"`
	Nachname string `xml:"Nachname"`
	Strasse  string `xml:"Strasse"`
	PLZ      string `xml:"PLZ"`
	Ort      string `xml:"Ort"`
	Land     string `xml:"Land"`
}

type documentPositions struct {
	Position []documentPosition `xml:"Position"`
}

type documentPosition struct {
	Referenz    string `xml:"Referenz"`
	Bezeichnung string `xml:"Bezeichnung"`
	Gr          string `xml:"Gr"`
	Menge       string `xml:"Menge"`
	Preis       string `xml:"Preis"`
}

type documentFiles struct {
	Anlage []documentFile `xml:"Anlage"`
}

type documentFile struct {
	Dateiname string `xml:"Dateiname"`
	Datei     string `xml:"Datei"`
}

// BuildOrderDocument renders the mainframe write document for a local order.
func BuildOrderDocument(order domain.Order) ([]byte, error) {
	doc := newOrderDocument(order)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode order document: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encode order document: %w", err)
	}

	if err := validateDocument(buf.Bytes()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newOrderDocument(order domain.Order) orderDocument {
	reference := strings.TrimSpace(order.OrderNumber)
	date := ""
	if !order.OrderDate.IsZero() {
		date = order.OrderDate.UTC().Format(documentDateLayout)
	}

	address := order.DeliveryAddress
	if address == nil {
		address = order.BillingAddress
	}

	delivery := &documentAddress{}
	if address != nil {
		delivery = &documentAddress{
			Firma:    address.Company,
			Vorname:  address.FirstName,
			Nachname: address.LastName,
			Strasse:  address.Street,
			PLZ:      address.Zipcode,
			Ort:      address.City,
			Land:     address.Country,
		}
	}

	items := append([]domain.LineItem(nil), order.LineItems...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	positions := &documentPositions{Position: make([]documentPosition, 0, len(items))}
	for _, item := range items {
		positions.Position = append(positions.Position, documentPosition{
			Referenz:    strings.TrimSpace(item.Reference),
			Bezeichnung: strings.TrimSpace(item.Label),
			Gr:          SizeCode(item.CustomData),
			Menge:       strconv.Itoa(item.Quantity),
			Preis:       strconv.FormatFloat(item.UnitPrice, 'f', 2, 64),
		})
	}

	files := &documentFiles{Anlage: make([]documentFile, 0, len(order.Attachments))}
	for _, attachment := range order.Attachments {
		files.Anlage = append(files.Anlage, documentFile{
			Dateiname: attachment.FileName,
			Datei:     attachment.Content,
		})
	}

	return orderDocument{
		Referenz: &reference,
		Datum:    &date,
		Kunde: &documentCustomer{
			Kundennummer: order.Customer.Number,
			Firma:        order.Customer.Company,
			Vorname:      order.Customer.FirstName,
			Nachname:     order.Customer.LastName,
			Email:        order.Customer.Email,
		},
		Lieferadresse: delivery,
		Positionen:    positions,
		Anlagen:       files,
	}
}

// requiredNodes must be present in every rendered document, even when empty.
var requiredNodes = []string{"Referenz", "Datum", "Kunde", "Positionen", "Anlagen"}

// validateDocument checks the rendered bytes, so a node dropped by an omitempty tag or a nil
// field is caught the same way as one never built.
func validateDocument(body []byte) error {
	tree, err := mainframe.ParseTree(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDocumentIncomplete, err)
	}

	missing := make([]string, 0, len(requiredNodes))
	for _, node := range requiredNodes {
		if _, ok := tree[node]; !ok {
			missing = append(missing, node)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrDocumentIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// SizeCode returns the two character size code of a line: upper-cased, zero-left-padded,
// "00" when absent. Longer values keep their first two characters.
func SizeCode(customData map[string]string) string {
	code := ""
	for _, key := range sizeKeys {
		if value := strings.TrimSpace(customData[key]); value != "" {
			code = value
			break
		}
	}

	code = strings.ToUpper(code)
	switch runes := []rune(code); {
	case len(runes) == 0:
		return defaultVariant
	case len(runes) == 1:
		return "0" + code
	default:
		return string(runes[:2])
	}
}
