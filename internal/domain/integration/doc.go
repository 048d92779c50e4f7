// Package integration contains the External Document Ingestion & Reconciliation
// bounded context.
//
// Key concepts:
//   - SourceAdapter: Port every upstream (SOAP gateway, REST bookkeeping, XML feed,
//     spreadsheet export) implements to list, download and parse documents
//   - ExternalDocument: The normalized unit every adapter produces
//   - Binding: Link between (source, external id, entity kind) and an internal id
//   - SyncCheckpoint: Per (source, kind, direction, tenant) date cursor
//   - SyncLog: Per-run outcome record
//   - PartnerService, ProductService, LedgerService: Collaborator contracts EDIRE
//     reads from and writes through
//   - RunContext: Explicit run scope (tenant, source, sync tag, clock, transaction)
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
