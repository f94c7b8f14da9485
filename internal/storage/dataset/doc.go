// Package dataset implements the store file: named groups of typed,
// chunked, append-only datasets.
//
// The package provides:
//   - File, created with Create and reopened with Open or OpenReadOnly
//   - CreateGroup/CreateDataset for the schema layer
//   - Append, Read, ReadRange and ReadScalar, generic over int32 and float32
//   - Flush as the only durability boundary
//
// Every write is an append of a checksummed record, so a crash can only
// leave a torn record at the end of the file, which Open discards.
package dataset
