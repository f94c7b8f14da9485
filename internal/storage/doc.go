// Package storage opens tonestore files and runs the operations that span
// the whole store.
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  featuredb  │────▶│   dataset   │────▶│   parquet   │──▶ publish
//	│  (records)  │     │ (.tone file)│     │   export    │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │                   │
//	                           ▼                   ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │  aggregate  │     │    query    │
//	                    │ (summaries) │     │  (DuckDB)   │
//	                    └─────────────┘     └─────────────┘
//
// Records are written through the feature database. Export and Summarize
// flush the store and fan out over the tables with one read-only handle
// per table.
package storage
