package dataset

import (
	"github.com/xtxerr/tonestore/internal/errors"
)

var (
	ErrDatasetNotFound      = errors.ErrDatasetNotFound
	ErrDatasetNotCompatible = errors.ErrDatasetNotCompatible
	ErrWidthMismatch        = errors.ErrWidthMismatch
	ErrShapeMismatch        = errors.ErrShapeMismatch
	ErrIndexOutOfRange      = errors.ErrIndexOutOfRange
	ErrStoreClosed          = errors.ErrStoreClosed
	ErrReadOnly             = errors.ErrReadOnly
	ErrCorruptStore         = errors.ErrCorruptStore
	ErrUnsupportedStore     = errors.ErrUnsupportedStore
	ErrGroupExists          = errors.ErrGroupAlreadyExists
	ErrGroupMissing         = errors.ErrGroupNotFound
	ErrDatasetExists        = errors.ErrDatasetAlreadyExists
)
