// Package types defines the core data types used throughout the storage system.
//
// Key types:
//   - Elem, Rank: element type and dimensionality of a stored table
//   - Event: one recorded note
//   - Label: supervision target for one analysis window
//   - Feature: spectral and peak channels for one analysis window
package types
