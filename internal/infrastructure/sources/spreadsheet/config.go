package spreadsheet

import (
	"errors"
	"strings"
)

// DefaultSheet is the sheet name of a detailed voucher listing export
const DefaultSheet = "DETAY FİŞ LİSTESİ"

// AccountMapping rewrites a source account code to the chart of accounts used
// by the ledger
type AccountMapping struct {
	Code string
	// Name replaces the exported account name when set
	Name string
	// PartnerName attaches a partner to every line booked on the account
	PartnerName string
}

// Config holds the settings of a spreadsheet ledger source
type Config struct {
	SourceID string
	// Path is an .xlsx file, or a directory whose .xlsx files are read in name order
	Path string
	// Sheet is the preferred sheet; the first sheet is used when it is absent
	Sheet string
	// AccountMap is keyed by the exported account code
	AccountMap map[string]AccountMapping
}

// Errors for spreadsheet configuration
var (
	ErrConfigMissingSourceID = errors.New("spreadsheet: source id is required")
	ErrConfigMissingPath     = errors.New("spreadsheet: path is required")
)

// Validate checks the configuration and fills defaults
func (c *Config) Validate() error {
	if c.SourceID == "" {
		return ErrConfigMissingSourceID
	}
	if strings.TrimSpace(c.Path) == "" {
		return ErrConfigMissingPath
	}
	if c.Sheet == "" {
		c.Sheet = DefaultSheet
	}
	return nil
}
