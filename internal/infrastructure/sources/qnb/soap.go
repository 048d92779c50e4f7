package qnb

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/beevik/etree"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/sources"
)

const (
	nsSOAPEnvelope = "http://schemas.xmlsoap.org/soap/envelope/"
	nsWSSE         = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsService      = "http://service.connector.uut.cs.com.tr/"
	passwordText   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"
)

// ErrSOAPFault is wrapped for gateway faults that are not authentication failures
var ErrSOAPFault = errors.New("qnb: soap fault")

// ErrEmptyResponse is returned when a response body carries no operation result
var ErrEmptyResponse = errors.New("qnb: empty soap response")

// authFaultMarkers are fragments of fault strings the gateway uses for credential failures
var authFaultMarkers = []string{"auth", "kimlik", "yetki", "şifre", "sifre", "password", "security", "unauthorized"}

// param is one ordered request parameter
type param struct {
	name  string
	value string
}

// buildEnvelope renders a SOAP 1.1 request carrying a WS-Security UsernameToken.
// When wrap is set the parameters are nested under an element of that name.
func buildEnvelope(username, password, operation, wrap string, params []param) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", nsSOAPEnvelope)
	env.CreateAttr("xmlns:ser", nsService)

	header := env.CreateElement("soapenv:Header")
	security := header.CreateElement("wsse:Security")
	security.CreateAttr("xmlns:wsse", nsWSSE)
	security.CreateAttr("soapenv:mustUnderstand", "1")
	token := security.CreateElement("wsse:UsernameToken")
	token.CreateElement("wsse:Username").SetText(username)
	pw := token.CreateElement("wsse:Password")
	pw.CreateAttr("Type", passwordText)
	pw.SetText(password)

	body := env.CreateElement("soapenv:Body")
	op := body.CreateElement("ser:" + operation)
	target := op
	if wrap != "" {
		target = op.CreateElement(wrap)
	}
	for _, p := range params {
		target.CreateElement(p.name).SetText(p.value)
	}
	return doc.WriteToBytes()
}

// call posts one operation and returns the operation response element
func (a *Adapter) call(ctx context.Context, operation, wrap string, params []param) (*etree.Element, error) {
	payload, err := buildEnvelope(a.cfg.Username, a.cfg.Password, operation, wrap, params)
	if err != nil {
		return nil, fmt.Errorf("qnb: build %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("qnb: create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `""`)
	if err := a.authorize(ctx, req); err != nil {
		return nil, err
	}

	body, _, httpErr := sources.Do(a.client, req, a.cfg.SourceID, operation)
	resp, fault := a.parseEnvelope(body, operation)
	if fault != nil {
		return nil, fault
	}
	if httpErr != nil {
		return nil, httpErr
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResponse, operation)
	}
	return resp, nil
}

// parseEnvelope returns the first element of the SOAP body, or the fault it carries
func (a *Adapter) parseEnvelope(body []byte, operation string) (*etree.Element, error) {
	if len(body) == 0 {
		return nil, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, nil
	}
	root := doc.Root()
	if root == nil {
		return nil, nil
	}
	soapBody := root.SelectElement("Body")
	if soapBody == nil {
		return nil, nil
	}
	if f := soapBody.SelectElement("Fault"); f != nil {
		return nil, a.faultError(operation, childText(f, "faultcode"), childText(f, "faultstring"))
	}
	if children := soapBody.ChildElements(); len(children) > 0 {
		return children[0], nil
	}
	return nil, nil
}

func (a *Adapter) faultError(operation, code, message string) error {
	lower := strings.ToLower(code + " " + message)
	for _, marker := range authFaultMarkers {
		if strings.Contains(lower, marker) {
			return &integration.AuthError{
				SourceID: a.cfg.SourceID,
				Err:      fmt.Errorf("%s: %s", operation, message),
			}
		}
	}
	return fmt.Errorf("%w: %s [%s] %s", ErrSOAPFault, operation, code, message)
}

// decodePayload unwraps a base64 document payload. ZIP archives yield the
// entry whose extension matches ext (or the first entry).
func decodePayload(encoded, ext string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if strings.HasPrefix(s, "<") {
		return []byte(s), nil
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("qnb: decode payload: %w", err)
	}
	if !bytes.HasPrefix(raw, []byte("PK\x03\x04")) {
		return raw, nil
	}
	return unzipEntry(raw, ext)
}

func unzipEntry(archive []byte, ext string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("qnb: open zip payload: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("qnb: zip payload is empty")
	}
	pick := zr.File[0]
	for _, f := range zr.File {
		if strings.EqualFold(path.Ext(f.Name), ext) {
			pick = f
			break
		}
	}
	rc, err := pick.Open()
	if err != nil {
		return nil, fmt.Errorf("qnb: open zip entry %s: %w", pick.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, sources.MaxResponseSize))
}

func childText(e *etree.Element, tag string) string {
	if e == nil {
		return ""
	}
	c := e.SelectElement(tag)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}

// firstChildText returns the text of the first present tag
func firstChildText(e *etree.Element, tags ...string) string {
	for _, t := range tags {
		if v := childText(e, t); v != "" {
			return v
		}
	}
	return ""
}
