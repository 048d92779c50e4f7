package xmlfeed

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/shopspring/decimal"
)

// Errors for feed configuration
var (
	ErrConfigMissingSourceID = errors.New("xmlfeed: source id is required")
	ErrConfigInvalidURL      = errors.New("xmlfeed: feed url is invalid")
	ErrConfigUnknownTemplate = errors.New("xmlfeed: unknown template")
	ErrConfigNoMappings      = errors.New("xmlfeed: custom template requires field mappings")
	ErrConfigInvalidMapping  = errors.New("xmlfeed: invalid field mapping")
	ErrConfigInvalidPricing  = errors.New("xmlfeed: invalid pricing")
)

// Config holds the settings of one supplier feed
type Config struct {
	SourceID string
	URL      string
	// Username and Password enable HTTP Basic Auth when both are set
	Username string
	Password string

	// Template selects the default root path and mappings
	Template string
	// RootPath overrides the template's item path, e.g. "//Products/Product"
	RootPath string
	// Mappings replace the template's mappings when non-empty
	Mappings []Mapping

	Pricing Pricing
	// MinStock drops items whose stock is below it; zero keeps every item
	MinStock int
	// MinPrice and MaxPrice drop items priced outside the range; zero disables a bound
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal

	TimeoutSeconds int
}

// Validate checks the configuration and fills defaults from the template
func (c *Config) Validate() error {
	if c.SourceID == "" {
		return ErrConfigMissingSourceID
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrConfigInvalidURL
	}
	if c.Template == "" {
		c.Template = TemplateGeneric
	}
	tmpl, ok := templates[c.Template]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigUnknownTemplate, c.Template)
	}
	if c.RootPath == "" {
		c.RootPath = tmpl.Root
	}
	if len(c.Mappings) == 0 {
		if c.Template == TemplateCustom {
			return ErrConfigNoMappings
		}
		c.Mappings = tmpl.mappings()
	}
	for i := range c.Mappings {
		if err := c.Mappings[i].validate(); err != nil {
			return err
		}
	}
	if err := c.Pricing.validate(); err != nil {
		return err
	}
	if c.MinStock < 0 {
		c.MinStock = 0
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 120
	}
	return nil
}

func (m *Mapping) validate() error {
	if !m.Target.IsValid() {
		return fmt.Errorf("%w: target %q", ErrConfigInvalidMapping, m.Target)
	}
	if m.Path == "" {
		return fmt.Errorf("%w: %s has no path", ErrConfigInvalidMapping, m.Target)
	}
	if m.Transform == "" {
		m.Transform = TransformNone
	}
	if !m.Transform.IsValid() {
		return fmt.Errorf("%w: transform %q", ErrConfigInvalidMapping, m.Transform)
	}
	if m.Transform == TransformRegex {
		re, err := regexp.Compile(m.Regex)
		if err != nil || m.Regex == "" {
			return fmt.Errorf("%w: %s regex %q", ErrConfigInvalidMapping, m.Target, m.Regex)
		}
		m.re = re
	}
	return nil
}
