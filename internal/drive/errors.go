package drive

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized source errors.
var (
	ErrNotFound    = errors.New("NOT_FOUND")
	ErrBusy        = errors.New("BUSY")
	ErrUnavailable = errors.New("UNAVAILABLE")
	ErrInternal    = errors.New("INTERNAL")
)

// TokenMap lists the backend error tokens for each normalized code.
type TokenMap struct {
	NotFound    []string
	Busy        []string
	Unavailable []string
}

// ErrorMappings holds the token tables per backend. Unknown backends use
// "generic"; unknown tokens map to INTERNAL.
var ErrorMappings = map[string]TokenMap{
	"drive": {
		NotFound: []string{
			"FILE_NOT_FOUND",
			"NOTFOUND",
			"FOLDER_NOT_FOUND",
		},
		Busy: []string{
			"USERRATELIMITEXCEEDED",
			"RATELIMITEXCEEDED",
			"SHARINGRATELIMITEXCEEDED",
			"QUOTAEXCEEDED",
		},
		Unavailable: []string{
			"BACKENDERROR",
			"INTERNALERROR",
			"SERVICE_UNAVAILABLE",
			"AUTHERROR",
		},
	},
	"generic": {
		NotFound: []string{
			"NOT_FOUND",
			"NO SUCH FILE",
			"DOES NOT EXIST",
		},
		Busy: []string{
			"BUSY",
			"RATE_LIMIT",
			"TOO_MANY_REQUESTS",
		},
		Unavailable: []string{
			"UNAVAILABLE",
			"PERMISSION DENIED",
			"CONNECTION REFUSED",
			"TIMEOUT",
		},
	},
}

// SourceError wraps a backend error with its normalized code.
type SourceError struct {
	Code     error // normalized
	Original error
	Details  any
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%v (source: %v)", e.Code, e.Original)
}

func (e *SourceError) Unwrap() error {
	return e.Code
}

// NormalizeError maps err with the generic table.
func NormalizeError(err error, details any) error {
	return NormalizeErrorFor(err, details, "generic")
}

// NormalizeErrorFor maps err with the table of the named backend. Errors
// that already carry a normalized code are returned unchanged.
func NormalizeErrorFor(err error, details any, backend string) error {
	if err == nil {
		return nil
	}
	var serr *SourceError
	if errors.As(err, &serr) {
		return err
	}

	return &SourceError{
		Code:     codeFor(err.Error(), backend),
		Original: err,
		Details:  details,
	}
}

func codeFor(msg, backend string) error {
	tokens, ok := ErrorMappings[backend]
	if !ok {
		tokens = ErrorMappings["generic"]
	}

	upper := strings.ToUpper(msg)
	match := func(list []string) bool {
		for _, token := range list {
			if strings.Contains(upper, token) {
				return true
			}
		}
		return false
	}

	switch {
	case match(tokens.NotFound):
		return ErrNotFound
	case match(tokens.Busy):
		return ErrBusy
	case match(tokens.Unavailable):
		return ErrUnavailable
	default:
		return ErrInternal
	}
}
