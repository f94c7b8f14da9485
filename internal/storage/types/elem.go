package types

import "fmt"

// Elem is the element type stored in a table.
type Elem uint8

const (
	// ElemInvalid is the zero value and never stored.
	ElemInvalid Elem = iota
	// ElemInt32 is a little-endian signed 32-bit integer.
	ElemInt32
	// ElemFloat32 is a little-endian IEEE-754 32-bit float.
	ElemFloat32
)

// String returns a human-readable representation of the Elem.
func (e Elem) String() string {
	switch e {
	case ElemInt32:
		return "int32"
	case ElemFloat32:
		return "float32"
	default:
		return fmt.Sprintf("elem(%d)", uint8(e))
	}
}

// Size returns the encoded size of one element in bytes.
func (e Elem) Size() int {
	switch e {
	case ElemInt32, ElemFloat32:
		return 4
	default:
		return 0
	}
}

// Valid reports whether e is a storable element type.
func (e Elem) Valid() bool {
	return e == ElemInt32 || e == ElemFloat32
}

// Rank is the dimensionality of a table.
type Rank uint8

const (
	// Scalar tables hold one element per row.
	Scalar Rank = 1
	// Vector tables hold a fixed-width vector per row.
	Vector Rank = 2
)

// String returns a human-readable representation of the Rank.
func (r Rank) String() string {
	switch r {
	case Scalar:
		return "1-D"
	case Vector:
		return "2-D"
	default:
		return fmt.Sprintf("rank(%d)", uint8(r))
	}
}

// Element is the set of Go types a table can hold.
type Element interface {
	int32 | float32
}

// ElemOf returns the Elem that stores values of type T.
func ElemOf[T Element]() Elem {
	var zero T
	switch any(zero).(type) {
	case int32:
		return ElemInt32
	case float32:
		return ElemFloat32
	default:
		return ElemInvalid
	}
}
