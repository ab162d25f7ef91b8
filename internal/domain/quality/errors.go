package quality

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUpstreamData        = errors.New("upstream data error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
)

// ErrorKind names the sentinel an error carries, for callers that only see
// the error as data.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindUpstreamData        ErrorKind = "upstream_data"
	KindConfiguration       ErrorKind = "configuration"
	KindNotFound            ErrorKind = "not_found"
	KindInternal            ErrorKind = "internal"
)

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrUpstreamData):
		return KindUpstreamData
	}
	return KindInternal
}
