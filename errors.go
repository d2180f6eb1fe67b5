package bibnet

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("bibnet: invalid configuration")

	// ErrNoRecords is returned when no record carries a usable year and the
	// year range has to be derived from the data.
	ErrNoRecords = errors.New("bibnet: no dated records")

	// ErrStoreRequired is returned by operations that need persistence when
	// no database is configured.
	ErrStoreRequired = errors.New("bibnet: no database configured")

	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("bibnet: engine is closed")
)
