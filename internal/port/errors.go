package port

import "errors"

// Sentinels returned by every store implementation.
var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("conditional update matched no row")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateKey      = errors.New("duplicate key")
)

var ErrUnsupportedImage = errors.New("unsupported image type")
