// Package normalize provides the canonical forms EDIRE compares and stores:
// tax ids, names, IBANs, barcodes, phones, e-mail addresses, Turkish
// monetary amounts, dates and cleaned product descriptions.
//
// All functions are pure and never fail loudly. Unparseable input yields the
// empty/zero canonical value so callers can decide whether a field is present.
package normalize
