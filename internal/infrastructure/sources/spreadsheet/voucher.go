// Package spreadsheet reads legacy accounting exports that list journal
// vouchers row by row and turns each voucher into a ledger document.
package spreadsheet

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// balanceTolerance is twice the currency rounding
var balanceTolerance = decimal.New(2, -normalize.MoneyPlaces)

// Voucher is one journal voucher after row hygiene
type Voucher struct {
	// Ref is "YYYY/NNNNN", the voucher year and number
	Ref    string          `json:"ref"`
	Type   string          `json:"type"`
	Number string          `json:"number"`
	Date   time.Time       `json:"date"`
	Lines  []Line          `json:"lines"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
	// Unbalanced is set when debit and credit differ by more than the tolerance
	Unbalanced bool `json:"unbalanced,omitempty"`
}

// Line is one detail row of a voucher
type Line struct {
	// SourceCode is the account code as exported
	SourceCode  string          `json:"source_code"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name,omitempty"`
	PartnerName string          `json:"partner_name,omitempty"`
	Label       string          `json:"label,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

func (l Line) meaningful() bool {
	return l.PartnerName != "" || l.Label != ""
}

// Stats counts what a parse saw
type Stats struct {
	Vouchers        int
	Headers         int
	Totals          int
	Lines           int
	ParentsDropped  int
	RepeatsDropped  int
	InvalidVouchers int
}

// ---------------------------------------------------------------------------
// Row state machine
// ---------------------------------------------------------------------------

type parseState int

const (
	stateOutside parseState = iota
	stateHeaderSeen
	stateInsideVoucher
	stateTotals
)

var voucherHeaderRe = regexp.MustCompile(
	`(?i)Fiş\s*Tipi\s*/\s*Fiş\s*No\s*:\s*(.+?)\s*/\s*(\d+)\s*Tarih\s*:\s*(\d{2}/\d{2}/\d{4})`)

const (
	colHeaderCode   = "HESAP KODU"
	colHeaderName   = "HESAP ADI"
	colHeaderLabel  = "AÇIKLAMA"
	colHeaderDebit  = "BORÇ"
	colHeaderCredit = "ALACAK"
	totalsMarker    = "GENEL TOPLAM"
)

// partnerAccountPrefixes are the receivable and payable sub-accounts whose
// account name is the partner name
var partnerAccountPrefixes = []string{"120.01.", "320.01."}

type columns struct {
	code, name, label, debit, credit int
}

func noColumns() columns { return columns{-1, -1, -1, -1, -1} }

func (c columns) cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Parser walks sheet rows and collects vouchers
type Parser struct {
	accounts map[string]AccountMapping

	state   parseState
	cols    columns
	current *Voucher
	out     []Voucher
	stats   Stats
}

// NewParser creates a parser applying accounts to every line. accounts may be nil.
func NewParser(accounts map[string]AccountMapping) *Parser {
	return &Parser{accounts: accounts, cols: noColumns()}
}

// Parse runs the state machine over rows and returns the vouchers in sheet order
func (p *Parser) Parse(rows [][]string) ([]Voucher, Stats) {
	for _, row := range rows {
		p.step(row)
	}
	p.flush()
	out, stats := p.out, p.stats
	p.out, p.stats, p.state, p.cols = nil, Stats{}, stateOutside, noColumns()
	return out, stats
}

func (p *Parser) step(row []string) {
	joined := strings.Join(strings.Fields(strings.Join(row, " ")), " ")
	if joined == "" {
		return
	}

	if m := voucherHeaderRe.FindStringSubmatch(joined); m != nil {
		p.flush()
		p.cols = noColumns()
		p.stats.Vouchers++
		date, err := time.Parse("02/01/2006", m[3])
		if err != nil {
			p.stats.InvalidVouchers++
			p.state = stateOutside
			return
		}
		number := padNumber(m[2])
		p.current = &Voucher{
			Ref:    fmt.Sprintf("%d/%s", date.Year(), number),
			Type:   strings.TrimSpace(m[1]),
			Number: number,
			Date:   date,
		}
		p.state = stateHeaderSeen
		return
	}

	upper := make([]string, len(row))
	for i, c := range row {
		upper[i] = normalize.Upper(strings.TrimSpace(c))
	}
	if slices.ContainsFunc(upper, func(c string) bool { return strings.Contains(c, colHeaderCode) }) {
		p.captureColumns(upper)
		p.stats.Headers++
		if p.current != nil {
			p.state = stateInsideVoucher
		}
		return
	}

	if strings.Contains(normalize.Upper(joined), totalsMarker) {
		p.stats.Totals++
		p.state = stateTotals
		return
	}

	if p.state != stateInsideVoucher {
		return
	}
	if line, ok := p.line(row); ok {
		p.current.Lines = append(p.current.Lines, line)
		p.stats.Lines++
	}
}

func (p *Parser) captureColumns(upper []string) {
	p.cols = noColumns()
	for i, c := range upper {
		switch {
		case strings.Contains(c, colHeaderCode):
			p.cols.code = i
		case strings.Contains(c, colHeaderName):
			p.cols.name = i
		case strings.Contains(c, colHeaderLabel):
			p.cols.label = i
		case strings.Contains(c, colHeaderDebit):
			p.cols.debit = i
		case strings.Contains(c, colHeaderCredit):
			p.cols.credit = i
		}
	}
}

func (p *Parser) line(row []string) (Line, bool) {
	code := accountCode(p.cols.cell(row, p.cols.code))
	if code == "" {
		return Line{}, false
	}
	l := Line{
		SourceCode:  code,
		AccountCode: code,
		AccountName: p.cols.cell(row, p.cols.name),
		Label:       p.cols.cell(row, p.cols.label),
		Debit:       cellAmount(p.cols.cell(row, p.cols.debit)),
		Credit:      cellAmount(p.cols.cell(row, p.cols.credit)),
	}
	if m, ok := p.accounts[code]; ok && m.Code != "" {
		l.AccountCode = m.Code
		l.AccountName = cmp.Or(m.Name, l.AccountName)
		l.PartnerName = m.PartnerName
	}
	if l.PartnerName == "" && isPartnerAccount(code) {
		l.PartnerName = l.AccountName
	}
	return l, true
}

// padNumber left-pads a voucher number to five digits
func padNumber(n string) string {
	if len(n) >= 5 {
		return n
	}
	return strings.Repeat("0", 5-len(n)) + n
}

func isPartnerAccount(code string) bool {
	for _, prefix := range partnerAccountPrefixes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// accountCode undoes the float rendering of whole codes: "501.0" becomes "501"
func accountCode(raw string) string {
	s := strings.TrimSpace(raw)
	if head, ok := strings.CutSuffix(s, ".0"); ok && head != "" && isDigits(head) {
		return head
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// cellAmount reads a raw numeric cell ("12420.5") or a Turkish text cell
// ("12.420,50"). Text amounts always carry a decimal comma.
func cellAmount(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	if !strings.Contains(raw, ",") {
		if d, err := decimal.NewFromString(raw); err == nil {
			return normalize.Money(d)
		}
	}
	return normalize.ParseAmountTR(raw)
}

// ---------------------------------------------------------------------------
// Voucher hygiene
// ---------------------------------------------------------------------------

func (p *Parser) flush() {
	v := p.current
	p.current = nil
	if v == nil || len(v.Lines) == 0 {
		return
	}

	lines, parents := dropParents(v.Lines)
	lines, repeats := dropRepeats(lines)
	p.stats.ParentsDropped += parents
	p.stats.RepeatsDropped += repeats

	v.Lines = lines
	v.Debit, v.Credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		v.Debit = v.Debit.Add(l.Debit)
		v.Credit = v.Credit.Add(l.Credit)
	}
	v.Unbalanced = v.Debit.Sub(v.Credit).Abs().GreaterThan(balanceTolerance)
	p.out = append(p.out, *v)
}

// dropParents removes rows whose code is the parent of another row's code.
// The export repeats parent accounts as the total of their children.
func dropParents(lines []Line) ([]Line, int) {
	parents := make(map[string]struct{})
	for _, a := range lines {
		for _, b := range lines {
			if b.SourceCode != a.SourceCode && strings.HasPrefix(b.SourceCode, a.SourceCode+".") {
				parents[a.SourceCode] = struct{}{}
				break
			}
		}
	}
	if len(parents) == 0 {
		return lines, 0
	}
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if _, ok := parents[l.SourceCode]; !ok {
			out = append(out, l)
		}
	}
	return out, len(lines) - len(out)
}

type repeatKey struct {
	code, debit, credit string
}

// dropRepeats groups rows by account and amounts. A group with a partner or
// label keeps only such rows; otherwise one row with the longest source code
// survives. Group order follows first appearance.
func dropRepeats(lines []Line) ([]Line, int) {
	groups := make(map[repeatKey][]Line)
	var order []repeatKey
	for _, l := range lines {
		k := repeatKey{l.AccountCode, l.Debit.StringFixed(normalize.MoneyPlaces), l.Credit.StringFixed(normalize.MoneyPlaces)}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], l)
	}

	out := make([]Line, 0, len(lines))
	for _, k := range order {
		group := groups[k]
		if slices.ContainsFunc(group, Line.meaningful) {
			for _, l := range group {
				if l.meaningful() {
					out = append(out, l)
				}
			}
			continue
		}
		out = append(out, slices.MaxFunc(group, func(a, b Line) int {
			return cmp.Compare(len(a.SourceCode), len(b.SourceCode))
		}))
	}
	return out, len(lines) - len(out)
}
