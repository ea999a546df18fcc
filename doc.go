// Package crmtap extracts entities from a CRM organization and emits them as
// a JSON-lines message stream: RECORD messages for data and STATE messages
// carrying incremental bookmarks.
//
// # Architecture
//
// A run has two modes.
//
// Discovery lists every queryable entity, reads its field metadata and builds
// a catalog entry per entity: a schema document with every property
// unselected, the incremental cursor chosen by a fixed priority
// (SystemModstamp, LastModifiedDate, CreatedDate, then LoginTime for
// LoginHistory only) and the composite parent fields removed. The catalog is
// written to /tmp/catalog.json by default.
//
// Sync reads a catalog with selections, builds the bookmark state from a
// previous state document (or start_date), and syncs each selected entity in
// catalog order. After every record of an entity with a cursor, the bookmark
// is advanced and the full state is emitted, so any emitted STATE is a safe
// resume point.
//
// # Quick Start
//
//	crmtap discover --config tap.json
//	# edit /tmp/catalog.json: set "selected": true on streams and properties
//	crmtap sync --config tap.json --catalog /tmp/catalog.json > out.jsonl
//	tail -n 1 out.jsonl | jq .value > state.json
//	crmtap sync --config tap.json --catalog /tmp/catalog.json --state state.json
//
// # Key Packages
//
//	pkg/catalog        - Schema building, cursor policy, discovery, catalog files
//	pkg/state          - Bookmark state construction and files
//	pkg/transform      - Record coercion and selection filtering
//	pkg/messages       - RECORD / STATE JSON-lines writer
//	pkg/crm            - Remote API adapter: OAuth2, metadata, paged queries
//	pkg/clients        - HTTP/2 client with rate limiting, retries and metrics
//	pkg/checkpoint     - SQLite journal of emitted states
//	pkg/config         - Configuration loading and validation
//	pkg/errors         - Operational vs unclassified failures
//	pkg/logger         - Structured logging to stderr
//	pkg/metrics        - Prometheus collectors and per-stream record counters
//	pkg/observability  - OpenTelemetry tracing
//	internal/pipeline  - The per-stream sync loop
//
// # Exit Status
//
// Operational failures (authentication, connection, rate limiting, remote
// API, metadata, configuration, data and file errors) are logged at critical
// severity and exit with status 1. Any other failure is logged with its stack
// and panics.
package crmtap
