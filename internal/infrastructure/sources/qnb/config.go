package qnb

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// Config holds the connection settings of a QNB e-document gateway source
type Config struct {
	// SourceID is the configured id of the source
	SourceID string
	// Username and Password are sent as a WS-Security UsernameToken (plain text)
	Username string
	Password string
	// VKN is the tenant tax id; it is derived from the digits of Username when empty
	VKN string
	// Environment is "test" or "production"
	Environment string
	// Endpoint overrides the environment's connector URL
	Endpoint string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// PageSize is the inbox page size; a shorter page is the last one
	PageSize int
	// MaxPages bounds inbox paging
	MaxPages int
	// FetchPDF attaches the rendered PDF to outgoing documents
	FetchPDF bool

	// TokenURL, ClientID and ClientSecret enable an OAuth 2.0 client-credentials
	// bearer token on top of the UsernameToken
	TokenURL     string
	ClientID     string
	ClientSecret string
}

const (
	// ProductionEndpoint is the live connector service
	ProductionEndpoint = "https://connector.qnbefinans.com/connector/ws/connectorService"
	// TestEndpoint is the first test connector service
	TestEndpoint = "https://erpefaturatest1.qnbesolutions.com.tr/efatura/ws/connectorService"

	EnvironmentTest       = "test"
	EnvironmentProduction = "production"

	DefaultPageSize = 100
	DefaultMaxPages = 500
	// MaxOutgoingWindowDays keeps outbox listings inside the gateway's 90-day quota
	MaxOutgoingWindowDays = 89
	// TokenRefreshMargin renews bearer tokens this long before they expire
	TokenRefreshMargin = 5 * time.Minute
)

// Errors for QNB configuration
var (
	ErrConfigMissingSourceID = errors.New("qnb: source id is required")
	ErrConfigMissingUsername = errors.New("qnb: username is required")
	ErrConfigMissingPassword = errors.New("qnb: password is required")
	ErrConfigMissingVKN      = errors.New("qnb: tax id is required and cannot be derived from the username")
	ErrConfigInvalidEnv      = errors.New("qnb: environment must be test or production")
	ErrConfigPartialOAuth    = errors.New("qnb: token url, client id and client secret must be set together")
)

// Validate checks the configuration and fills defaults
func (c *Config) Validate() error {
	if c.SourceID == "" {
		return ErrConfigMissingSourceID
	}
	if c.Username == "" {
		return ErrConfigMissingUsername
	}
	if c.Password == "" {
		return ErrConfigMissingPassword
	}
	if c.VKN == "" {
		c.VKN = strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, c.Username)
	}
	if len(c.VKN) != 10 && len(c.VKN) != 11 {
		return ErrConfigMissingVKN
	}
	switch c.Environment {
	case "":
		c.Environment = EnvironmentProduction
	case EnvironmentTest, EnvironmentProduction:
	default:
		return ErrConfigInvalidEnv
	}
	if c.Endpoint == "" {
		c.Endpoint = ProductionEndpoint
		if c.Environment == EnvironmentTest {
			c.Endpoint = TestEndpoint
		}
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 60
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	oauth := 0
	for _, v := range []string{c.TokenURL, c.ClientID, c.ClientSecret} {
		if v != "" {
			oauth++
		}
	}
	if oauth != 0 && oauth != 3 {
		return ErrConfigPartialOAuth
	}
	return nil
}

// UsesOAuth reports whether a bearer token is requested
func (c *Config) UsesOAuth() bool {
	return c.TokenURL != ""
}
