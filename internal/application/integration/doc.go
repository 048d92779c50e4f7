// Package integration holds the EDIRE use cases: entity resolution, routing,
// the protected-field guard, ledger reconciliation, the ingestion coordinator and
// the named operations hosts trigger.
//
// Data flows Adapter → ExternalDocument → Resolver (Partner, Product) → Router →
// Reconciler → Binding Store; every stage is a separate type with its own tests.
package integration
