package qnb

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// DefaultUnitCode is assumed when a line quantity carries no unitCode
const DefaultUnitCode = "C62"

// ErrUnknownDocument is returned for XML roots that are not UBL-TR documents
var ErrUnknownDocument = errors.New("qnb: unsupported UBL document")

// partyPaths lists, per document kind, the party elements holding the
// counterparty of an incoming and of an outgoing document.
var partyPaths = map[integration.DocumentKind][2]string{
	integration.DocumentKindInvoice:  {"AccountingSupplierParty/Party", "AccountingCustomerParty/Party"},
	integration.DocumentKindDespatch: {"DespatchSupplierParty/Party", "DeliveryCustomerParty/Party"},
	integration.DocumentKindResponse: {"SenderParty", "ReceiverParty"},
}

// ParseUBL maps a UBL-TR Invoice, DespatchAdvice or ApplicationResponse to an
// ExternalDocument. Element prefixes are ignored, so documents using any
// namespace prefix (or none) parse the same way. The kind is taken from the
// root element; SourceID and ExternalID are left to the caller.
func ParseUBL(raw []byte, direction integration.Direction) (*integration.ExternalDocument, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("qnb: read UBL: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrUnknownDocument
	}

	var kind integration.DocumentKind
	switch root.Tag {
	case "Invoice":
		kind = integration.DocumentKindInvoice
	case "DespatchAdvice":
		kind = integration.DocumentKindDespatch
	case "ApplicationResponse":
		kind = integration.DocumentKindResponse
	default:
		return nil, fmt.Errorf("%w: root element %q", ErrUnknownDocument, root.Tag)
	}

	out := &integration.ExternalDocument{
		Kind:      kind,
		Direction: direction,
		Number:    childText(root, "ID"),
		UUID:      childText(root, "UUID"),
		Date:      normalize.ParseDate(childText(root, "IssueDate")),
		Currency:  strings.ToUpper(childText(root, "DocumentCurrencyCode")),
		TypeCode:  firstChildText(root, "InvoiceTypeCode", "DespatchAdviceTypeCode", "ResponseCode"),
		ProfileID: childText(root, "ProfileID"),
		Totals:    parseTotals(root),
	}

	paths := partyPaths[kind]
	partyPath := paths[0]
	if direction == integration.DirectionOutgoing {
		partyPath = paths[1]
	}
	if party := root.FindElement(partyPath); party != nil {
		out.Counterparty = parseParty(party)
	}
	out.Counterparty.IBANs = parseIBANs(root)
	if direction == integration.DirectionOutgoing {
		out.Counterparty.IsCustomer = true
	} else {
		out.Counterparty.IsSupplier = true
	}

	lineTag, qtyTag := "InvoiceLine", "InvoicedQuantity"
	if kind == integration.DocumentKindDespatch {
		lineTag, qtyTag = "DespatchLine", "DeliveredQuantity"
	}
	for i, line := range root.SelectElements(lineTag) {
		out.Lines = append(out.Lines, parseLine(line, qtyTag, i+1))
	}
	return out, nil
}

func parseTotals(root *etree.Element) integration.Totals {
	var t integration.Totals
	if lmt := root.SelectElement("LegalMonetaryTotal"); lmt != nil {
		t.Gross = amount(lmt, "LineExtensionAmount")
		t.Net = amount(lmt, "TaxExclusiveAmount")
		if t.Net.IsZero() {
			t.Net = t.Gross
		}
		t.Total = amount(lmt, "PayableAmount")
		if t.Total.IsZero() {
			t.Total = amount(lmt, "TaxInclusiveAmount")
		}
	}
	// A document may carry several TaxTotal blocks (VAT plus withholding).
	for _, tt := range root.SelectElements("TaxTotal") {
		t.Tax = t.Tax.Add(amount(tt, "TaxAmount"))
	}
	return t
}

func parseParty(party *etree.Element) integration.PartnerCandidate {
	var c integration.PartnerCandidate

	for _, path := range []string{
		"PartyIdentification/ID[@schemeID='VKN']",
		"PartyIdentification/ID[@schemeID='TCKN']",
		"PartyIdentification/ID",
	} {
		if id := party.FindElement(path); id != nil {
			if v := normalize.TaxID(id.Text()); v != "" {
				c.TaxID = v
				break
			}
		}
	}

	c.Name = strings.TrimSpace(textAt(party, "PartyName/Name"))
	if c.Name == "" {
		if person := party.SelectElement("Person"); person != nil {
			c.Name = strings.TrimSpace(childText(person, "FirstName") + " " + childText(person, "FamilyName"))
		}
	}
	c.NormalizedName = normalize.Name(c.Name)

	if addr := party.SelectElement("PostalAddress"); addr != nil {
		street := childText(addr, "StreetName")
		if bn := childText(addr, "BuildingNumber"); bn != "" {
			street = strings.TrimSpace(street + " " + bn)
		}
		c.Street = street
		c.City = childText(addr, "CityName")
		c.District = childText(addr, "CitySubdivisionName")
		if c.District != "" && normalize.Fold(c.District) == normalize.Fold(c.City) {
			c.District = ""
		}
		c.Zip = childText(addr, "PostalZone")
		c.Country = textAt(addr, "Country/Name")
	}

	c.TaxOffice = textAt(party, "PartyTaxScheme/TaxScheme/Name")
	c.Website = childText(party, "WebsiteURI")
	if contact := party.SelectElement("Contact"); contact != nil {
		c.Phone = childText(contact, "Telephone")
		c.Email = childText(contact, "ElectronicMail")
	}
	return c
}

// parseIBANs harvests every PaymentMeans account; the first one is the primary
func parseIBANs(root *etree.Element) []string {
	var out []string
	for _, pm := range root.SelectElements("PaymentMeans") {
		iban := normalize.IBAN(textAt(pm, "PayeeFinancialAccount/ID"))
		if iban != "" && !slices.Contains(out, iban) {
			out = append(out, iban)
		}
	}
	return out
}

func parseLine(line *etree.Element, qtyTag string, fallbackSeq int) integration.DocumentLine {
	l := integration.DocumentLine{Sequence: fallbackSeq, UnitCode: DefaultUnitCode}
	if n, err := strconv.Atoi(childText(line, "ID")); err == nil {
		l.Sequence = n
	}
	if qty := line.SelectElement(qtyTag); qty != nil {
		l.Quantity = number(qty.Text())
		if unit := qty.SelectAttrValue("unitCode", ""); unit != "" {
			l.UnitCode = unit
		}
	}
	l.Subtotal = amount(line, "LineExtensionAmount")

	if item := line.SelectElement("Item"); item != nil {
		l.Description = childText(item, "Name")
		if l.Description == "" {
			l.Description = childText(item, "Description")
		}
		l.ProductCode = textAt(item, "SellersItemIdentification/ID")
		l.Barcode = textAt(item, "StandardItemIdentification/ID[@schemeID='GTIN']")
		if l.Barcode == "" {
			l.Barcode = textAt(item, "StandardItemIdentification/ID")
		}
		l.Barcode = normalize.Barcode(l.Barcode)
	}
	if price := line.SelectElement("Price"); price != nil {
		l.UnitPrice = number(childText(price, "PriceAmount"))
	}
	if sub := line.FindElement("TaxTotal/TaxSubtotal"); sub != nil {
		l.TaxAmount = amount(sub, "TaxAmount")
		l.TaxPercent = number(childText(sub, "Percent"))
	}
	return l
}

func textAt(e *etree.Element, path string) string {
	if found := e.FindElement(path); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

// amount reads a UBL machine-format amount rounded to two decimals
func amount(e *etree.Element, tag string) decimal.Decimal {
	return normalize.Money(number(childText(e, tag)))
}

func number(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
