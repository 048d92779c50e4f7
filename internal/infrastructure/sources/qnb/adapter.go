// Package qnb implements the QNB e-document SOAP gateway source: inbox and
// outbox listings, UBL/PDF downloads and the UBL-TR parser.
package qnb

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
	"github.com/mobilsoft/edire/internal/infrastructure/sources"
)

// Gateway operations
const (
	opIncomingList     = "gelenBelgeleriListele"
	opIncomingDownload = "gelenBelgeIndirExt"
	opOutgoingList     = "gidenBelgeleriListele"
	opOutgoingDownload = "gidenBelgeIndirExt"
)

// Document types (belgeTuru)
const (
	docTypeInvoice  = "FATURA"
	docTypeDespatch = "IRSALIYE"
	docTypeResponse = "UYGULAMA_YANITI"
)

// Download formats (belgeFormati)
const (
	formatUBL = "UBL"
	formatPDF = "PDF"
)

// Adapter is the QNB e-document gateway source
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

// NewAdapter creates a gateway adapter
func NewAdapter(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		cfg:    cfg,
		client: sources.NewHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second),
		logger: logger.With(zap.String("source_id", cfg.SourceID)),
	}
	a.resetTokens()
	return a, nil
}

// SourceID returns the configured source id
func (a *Adapter) SourceID() string { return a.cfg.SourceID }

// Type returns integration.SourceTypeQNB
func (a *Adapter) Type() integration.SourceType { return integration.SourceTypeQNB }

// Capabilities declares incoming and outgoing e-documents
func (a *Adapter) Capabilities() integration.Capabilities {
	return integration.NewCapabilities(integration.CapabilityIncomingInvoices, integration.CapabilityOutgoingInvoices)
}

// RefreshAuth drops the cached bearer token so the next call fetches a new one
func (a *Adapter) RefreshAuth(ctx context.Context) error {
	a.resetTokens()
	if a.tokens == nil {
		return nil
	}
	if _, err := a.token(); err != nil {
		return &integration.AuthError{SourceID: a.cfg.SourceID, Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// ListDocuments yields the documents of kind and direction dated within window.
// The inbox is paged by sequence number and filtered by date locally; the outbox
// is queried by date in sub-windows of at most MaxOutgoingWindowDays days.
func (a *Adapter) ListDocuments(
	ctx context.Context,
	window integration.Window,
	kind integration.DocumentKind,
	direction integration.Direction,
) iter.Seq2[integration.DocumentSummary, error] {
	return func(yield func(integration.DocumentSummary, error) bool) {
		docType, err := documentType(kind)
		if err != nil {
			yield(integration.DocumentSummary{}, err)
			return
		}
		if direction == integration.DirectionOutgoing {
			a.listOutgoing(ctx, window, kind, docType, yield)
			return
		}
		a.listIncoming(ctx, window, kind, docType, yield)
	}
}

func (a *Adapter) listIncoming(
	ctx context.Context,
	window integration.Window,
	kind integration.DocumentKind,
	docType string,
	yield func(integration.DocumentSummary, error) bool,
) {
	sequence := "0"
	for page := 0; page < a.cfg.MaxPages; page++ {
		resp, err := a.call(ctx, opIncomingList, "", []param{
			{"vergiTcKimlikNo", a.cfg.VKN},
			{"sonAlinanBelgeSiraNumarasi", sequence},
			{"belgeTuru", docType},
		})
		if err != nil {
			yield(integration.DocumentSummary{}, err)
			return
		}
		items := resp.SelectElements("return")
		for _, item := range items {
			s := summaryFrom(item, kind, integration.DirectionIncoming)
			if s.ExternalID == "" || !window.Contains(s.Date) {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
		if len(items) < a.cfg.PageSize {
			return
		}
		next := childText(items[len(items)-1], "belgeSiraNo")
		if next == "" || next == sequence {
			return
		}
		sequence = next
	}
	a.logger.Warn("inbox paging stopped at page limit", zap.Int("max_pages", a.cfg.MaxPages))
}

func (a *Adapter) listOutgoing(
	ctx context.Context,
	window integration.Window,
	kind integration.DocumentKind,
	docType string,
	yield func(integration.DocumentSummary, error) bool,
) {
	for _, w := range window.Split(MaxOutgoingWindowDays) {
		start, end := normalize.FormatCompactDate(w.Start), normalize.FormatCompactDate(w.End)
		resp, err := a.call(ctx, opOutgoingList, "parametreler", []param{
			{"baslangicBelgeTarihi", start},
			{"baslangicGonderimTarihi", start},
			{"belgeTuru", docType},
			{"bitisBelgeTarihi", end},
			{"bitisGonderimTarihi", end},
			{"vkn", a.cfg.VKN},
		})
		if err != nil {
			yield(integration.DocumentSummary{}, err)
			return
		}
		for _, item := range resp.SelectElements("return") {
			s := summaryFrom(item, kind, integration.DirectionOutgoing)
			if s.ExternalID == "" {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

func summaryFrom(item *etree.Element, kind integration.DocumentKind, direction integration.Direction) integration.DocumentSummary {
	s := integration.DocumentSummary{
		ExternalID: childText(item, "ettn"),
		Kind:       kind,
		Direction:  direction,
		Number:     childText(item, "belgeNo"),
		Date:       normalize.ParseDate(childText(item, "belgeTarihi")),
		Total:      normalize.ParseAmountTR(childText(item, "toplamTutar")),
		Currency:   firstChildText(item, "paraBirimi"),
	}
	if direction == integration.DirectionOutgoing {
		s.PartnerTaxID = normalize.TaxID(firstChildText(item, "aliciVkn", "aliciVknTckn"))
		s.PartnerName = firstChildText(item, "aliciUnvan", "aliciIsim")
	} else {
		s.PartnerTaxID = normalize.TaxID(firstChildText(item, "gonderenVknTckn", "gonderenVkn"))
		s.PartnerName = firstChildText(item, "gonderenIsim", "gonderenUnvan")
	}
	if s.Currency == "" {
		s.Currency = integration.DefaultCurrency
	}
	return s
}

func documentType(kind integration.DocumentKind) (string, error) {
	switch kind {
	case integration.DocumentKindInvoice:
		return docTypeInvoice, nil
	case integration.DocumentKindDespatch:
		return docTypeDespatch, nil
	case integration.DocumentKindResponse:
		return docTypeResponse, nil
	default:
		return "", fmt.Errorf("%w: qnb cannot list %s", integration.ErrCapabilityNotSupported, kind)
	}
}

// ---------------------------------------------------------------------------
// Download and parse
// ---------------------------------------------------------------------------

// DownloadDocument fetches the UBL payload of a listed document
func (a *Adapter) DownloadDocument(ctx context.Context, summary integration.DocumentSummary) ([]byte, error) {
	return a.download(ctx, summary, formatUBL)
}

func (a *Adapter) download(ctx context.Context, summary integration.DocumentSummary, format string) ([]byte, error) {
	docType, err := documentType(summary.Kind)
	if err != nil {
		return nil, err
	}
	op := opIncomingDownload
	if summary.Direction == integration.DirectionOutgoing {
		op = opOutgoingDownload
	}
	resp, err := a.call(ctx, op, "", []param{
		{"vergiTcKimlikNo", a.cfg.VKN},
		{"belgeEttn", summary.ExternalID},
		{"belgeTuru", docType},
		{"belgeFormati", format},
	})
	if err != nil {
		return nil, err
	}
	ret := resp.SelectElement("return")
	if ret == nil {
		return nil, fmt.Errorf("%w: %s %s", integration.ErrDocumentNotFound, op, summary.ExternalID)
	}
	encoded := childText(ret, "belgeIcerigi")
	if encoded == "" {
		encoded = ret.Text()
	}
	ext := ".xml"
	if format == formatPDF {
		ext = ".pdf"
	}
	payload, err := decodePayload(encoded, ext)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %s returned no content for %s", integration.ErrDocumentNotFound, op, summary.ExternalID)
	}
	return payload, nil
}

// ParseDocument maps a UBL payload. With FetchPDF set, outgoing documents also
// get their rendered PDF attached; a failed PDF download is logged and ignored.
func (a *Adapter) ParseDocument(ctx context.Context, summary integration.DocumentSummary, raw []byte) (*integration.ExternalDocument, error) {
	direction := summary.Direction
	if direction == "" {
		direction = integration.DirectionIncoming
	}
	doc, err := ParseUBL(raw, direction)
	if err != nil {
		return nil, integration.NewParseError(a.cfg.SourceID, summary.ExternalID, raw, err)
	}
	doc.SourceID = a.cfg.SourceID
	doc.ExternalID = summary.ExternalID
	if doc.Number == "" {
		doc.Number = summary.Number
	}
	if doc.Date.IsZero() {
		doc.Date = summary.Date
	}
	doc.Raw = raw
	doc.PayloadHash = integration.PayloadHash(raw)
	if err := doc.Validate(); err != nil {
		return nil, integration.NewParseError(a.cfg.SourceID, summary.ExternalID, raw, err)
	}

	if a.cfg.FetchPDF && direction == integration.DirectionOutgoing {
		pdf, err := a.download(ctx, summary, formatPDF)
		if err != nil {
			a.logger.Warn("pdf download failed",
				zap.String("external_id", summary.ExternalID),
				zap.Error(err),
			)
		} else {
			doc.Attachment = pdf
		}
	}
	return doc, nil
}

// ---------------------------------------------------------------------------
// Bearer tokens
// ---------------------------------------------------------------------------

// clientCredentials fetches a fresh token on every call; caching is left to
// the ReuseTokenSource wrapped around it.
type clientCredentials struct {
	cfg    *clientcredentials.Config
	client *http.Client
}

func (c clientCredentials) Token() (*oauth2.Token, error) {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.client)
	return c.cfg.Token(ctx)
}

func (a *Adapter) resetTokens() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cfg.UsesOAuth() {
		a.tokens = nil
		return
	}
	src := clientCredentials{
		cfg: &clientcredentials.Config{
			ClientID:     a.cfg.ClientID,
			ClientSecret: a.cfg.ClientSecret,
			TokenURL:     a.cfg.TokenURL,
		},
		client: a.client,
	}
	a.tokens = oauth2.ReuseTokenSourceWithExpiry(nil, src, TokenRefreshMargin)
}

func (a *Adapter) token() (*oauth2.Token, error) {
	a.mu.Lock()
	src := a.tokens
	a.mu.Unlock()
	return src.Token()
}

func (a *Adapter) authorize(_ context.Context, req *http.Request) error {
	if a.tokens == nil {
		return nil
	}
	tok, err := a.token()
	if err != nil {
		return &integration.AuthError{SourceID: a.cfg.SourceID, Err: fmt.Errorf("fetch token: %w", err)}
	}
	tok.SetAuthHeader(req)
	return nil
}

var (
	_ integration.SourceAdapter   = (*Adapter)(nil)
	_ integration.Reauthenticator = (*Adapter)(nil)
)
