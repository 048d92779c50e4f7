// Package models contains the GORM persistence models behind the integration
// stores. They stay separate from the domain types so the domain layer is free
// of ORM tags.
//
// Structure:
//   - integration.go: bindings, checkpoints, sync logs and source states
//   - partner.go: ERP partners
//   - catalog.go: product templates and variants
//   - finance.go: ledger entries and lines
//   - trade.go: non-invoice sale orders
package models
