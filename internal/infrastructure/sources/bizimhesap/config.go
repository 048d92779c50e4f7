package bizimhesap

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultBaseURL is the B2B API root
const DefaultBaseURL = "https://bizimhesap.com/api/b2b"

// Config holds the settings of a BizimHesap bookkeeping source
type Config struct {
	SourceID string
	// APIKey is sent both as the Key and the Token header
	APIKey  string
	BaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// Warehouse is the id or title of the warehouse whose stock is attached to
	// product records; empty disables stock lookups
	Warehouse string
}

// Errors for BizimHesap configuration
var (
	ErrConfigMissingSourceID = errors.New("bizimhesap: source id is required")
	ErrConfigMissingAPIKey   = errors.New("bizimhesap: api key is required")
	ErrConfigInvalidBaseURL  = errors.New("bizimhesap: base url is invalid")
)

// Validate checks the configuration and fills defaults
func (c *Config) Validate() error {
	if c.SourceID == "" {
		return ErrConfigMissingSourceID
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrConfigMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrConfigInvalidBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 60
	}
	return nil
}
