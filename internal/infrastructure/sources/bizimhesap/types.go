package bizimhesap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// resultOK is the resultCode of a successful call
const resultOK = 1

// envelope is the wrapper of every B2B response
type envelope struct {
	ResultCode int             `json:"resultCode"`
	ErrorText  string          `json:"errorText"`
	Data       json.RawMessage `json:"data"`
}

// ID decodes identifiers sent either as JSON numbers or strings
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	*id = ID(b)
	return nil
}

func (id ID) String() string { return string(id) }

// Amount decodes money and quantities sent as JSON numbers or as
// Turkish-formatted strings ("1.234,56")
type Amount struct {
	Value   decimal.Decimal
	Present bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		a.Value = normalize.ParseAmountExact(s)
		a.Present = true
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("bizimhesap: invalid amount %s: %w", b, err)
	}
	a.Value, a.Present = d, true
	return nil
}

// MarshalJSON keeps payload snapshots readable
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Present {
		return []byte("null"), nil
	}
	return []byte(a.Value.String()), nil
}

// Flag decodes booleans sent as true/false, 0/1 or "0"/"1"
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "", "null", "0", "false", "hayir", "hayır":
		*f = false
	default:
		n, err := strconv.ParseFloat(s, 64)
		*f = Flag(err != nil || n != 0)
	}
	return nil
}

// Contact is a customer or supplier record
type Contact struct {
	ID            ID     `json:"id"`
	Code          string `json:"code"`
	Title         string `json:"title"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	TaxNo         string `json:"taxno"`
	TaxNumber     string `json:"taxNumber"`
	TaxOffice     string `json:"taxoffice"`
	Authorized    string `json:"authorized"`
	Balance       Amount `json:"balance"`
	ChequeAndBond Amount `json:"chequeandbond"`
	Currency      string `json:"currency"`
	// ContactType is 1 for customers and 2 for suppliers
	ContactType  int  `json:"contactType"`
	TaxExempt    Flag `json:"is_tax_exempt"`
	VergidenMuaf Flag `json:"vergiden_muaf"`
}

// Contact types
const (
	contactCustomer = 1
	contactSupplier = 2
)

type contactsData struct {
	Customers []Contact `json:"customers"`
	Suppliers []Contact `json:"suppliers"`
}

// Product is a catalogue record
type Product struct {
	ID                   ID     `json:"id"`
	IsActive             *Flag  `json:"isActive"`
	Code                 string `json:"code"`
	Barcode              string `json:"barcode"`
	Title                string `json:"title"`
	Price                Amount `json:"price"`
	BuyingPrice          Amount `json:"buyingPrice"`
	Currency             string `json:"currency"`
	Unit                 string `json:"unit"`
	Tax                  Amount `json:"tax"`
	Photo                string `json:"photo"`
	Description          string `json:"description"`
	EcommerceDescription string `json:"ecommerceDescription"`
	Note                 string `json:"note"`
	Brand                string `json:"brand"`
	Category             string `json:"category"`
	Quantity             Amount `json:"quantity"`
}

type productsData struct {
	Products []Product `json:"products"`
}

// Warehouse is a stock location
type Warehouse struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

type warehousesData struct {
	Warehouses []Warehouse `json:"warehouses"`
}

// StockLevel is one row of a warehouse inventory
type StockLevel struct {
	ProductID ID     `json:"productId"`
	Quantity  Amount `json:"quantity"`
}

type inventoryData struct {
	Inventory []StockLevel `json:"inventory"`
}

// Invoice is a sale or purchase record. Field names vary between API
// generations, so several aliases are decoded.
type Invoice struct {
	ID              ID     `json:"id"`
	InvoiceNumber   string `json:"invoiceNumber"`
	InvoiceNo       string `json:"invoiceNo"`
	InvoiceNoSnake  string `json:"invoice_no"`
	InvoiceDate     string `json:"invoiceDate"`
	Date            string `json:"date"`
	TransactionDate string `json:"transactionDate"`
	// InvoiceType 0, 1 or 3 is a sale; anything else is a purchase
	InvoiceType  int           `json:"invoiceType"`
	ContactID    ID            `json:"contactId"`
	ContactTitle string        `json:"contactTitle"`
	Description  string        `json:"description"`
	Currency     string        `json:"currency"`
	Reference    string        `json:"reference"`
	Gross        Amount        `json:"gross"`
	Net          Amount        `json:"net"`
	Total        Amount        `json:"total"`
	Amount       Amount        `json:"amount"`
	Kdv          Amount        `json:"kdv"`
	TaxField     Amount        `json:"tax"`
	TaxAmount    Amount        `json:"taxAmount"`
	KdvAmount    Amount        `json:"kdvAmount"`
	VatAmount    Amount        `json:"vatAmount"`
	Lines        []InvoiceLine `json:"lines"`
	Items        []InvoiceLine `json:"items"`
}

// Number returns the first non-empty invoice number alias
func (i *Invoice) Number() string {
	return strings.TrimSpace(firstNonEmpty(i.InvoiceNumber, i.InvoiceNo, i.InvoiceNoSnake))
}

// RawDate returns the first non-empty date alias
func (i *Invoice) RawDate() string {
	return firstNonEmpty(i.InvoiceDate, i.Date, i.TransactionDate)
}

// TaxTotal returns the first present tax amount of kdv, tax, taxAmount,
// kdvAmount and vatAmount
func (i *Invoice) TaxTotal() decimal.Decimal {
	for _, a := range []Amount{i.Kdv, i.TaxField, i.TaxAmount, i.KdvAmount, i.VatAmount} {
		if a.Present && !a.Value.IsZero() {
			return a.Value
		}
	}
	return decimal.Zero
}

// GrandTotal returns total, falling back to amount
func (i *Invoice) GrandTotal() decimal.Decimal {
	if i.Total.Present {
		return i.Total.Value
	}
	return i.Amount.Value
}

// IsSale reports whether the invoice is an outgoing sale
func (i *Invoice) IsSale() bool {
	return i.InvoiceType == 0 || i.InvoiceType == 1 || i.InvoiceType == 3
}

// AllLines returns lines or, for older payloads, items
func (i *Invoice) AllLines() []InvoiceLine {
	if len(i.Lines) > 0 {
		return i.Lines
	}
	return i.Items
}

type invoicesData struct {
	Invoices []Invoice `json:"invoices"`
}

// invoicePayload is the snapshot stored per invoice: the record plus the
// contact it was issued to, when the contact list had it
type invoicePayload struct {
	Invoice
	Contact *Contact `json:"contact,omitempty"`
}

// InvoiceLine is one invoice row
type InvoiceLine struct {
	ProductID   ID     `json:"productId"`
	ProductName string `json:"productName"`
	Title       string `json:"title"`
	Code        string `json:"code"`
	ProductCode string `json:"productCode"`
	Barcode     string `json:"barcode"`
	Quantity    Amount `json:"quantity"`
	Qty         Amount `json:"qty"`
	UnitPrice   Amount `json:"unitPrice"`
	Price       Amount `json:"price"`
	VatRate     Amount `json:"vatRate"`
	TaxRate     Amount `json:"taxRate"`
	Tax         Amount `json:"tax"`
	Net         Amount `json:"net"`
	Total       Amount `json:"total"`
}

// ---------------------------------------------------------------------------
// Invoice export (/addinvoice)
// ---------------------------------------------------------------------------

// Export invoice types
const (
	ExportSale     = 3
	ExportPurchase = 5
)

// InvoiceExport is the /addinvoice request body
type InvoiceExport struct {
	FirmID      string         `json:"firmId"`
	InvoiceNo   string         `json:"invoiceNo"`
	InvoiceType int            `json:"invoiceType"`
	Note        string         `json:"note"`
	Dates       ExportDates    `json:"dates"`
	Customer    ExportCustomer `json:"customer"`
	Amounts     ExportAmounts  `json:"amounts"`
	Details     []ExportDetail `json:"details"`
}

type ExportDates struct {
	InvoiceDate  string `json:"invoiceDate"`
	DueDate      string `json:"dueDate"`
	DeliveryDate string `json:"deliveryDate"`
}

type ExportCustomer struct {
	CustomerID string `json:"customerId"`
	Title      string `json:"title"`
	TaxOffice  string `json:"taxOffice"`
	TaxNo      string `json:"taxNo"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
}

type ExportAmounts struct {
	Currency string `json:"currency"`
	Gross    string `json:"gross"`
	Discount string `json:"discount"`
	Net      string `json:"net"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type ExportDetail struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Note        string `json:"note"`
	Barcode     string `json:"barcode"`
	TaxRate     string `json:"taxRate"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	GrossPrice  string `json:"grossPrice"`
	Discount    string `json:"discount"`
	Net         string `json:"net"`
	Tax         string `json:"tax"`
	Total       string `json:"total"`
}

// AddInvoiceResult is the /addinvoice response
type AddInvoiceResult struct {
	GUID  string `json:"guid"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
