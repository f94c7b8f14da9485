// Package parquet exports store tables to Parquet files and imports them
// back.
//
// The package provides:
//   - Writer/Reader, generic over the row types IntRow, FloatRow and VectorRow
//   - ExportTable, streaming one table into one file in row-group batches
//   - ImportTable, appending a previously exported file to a store
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
//
// Exported files live at <dir>/<group>/<table>.parquet and carry the row
// index next to the values, so they can be joined across sibling tables.
package parquet
