package zone

import (
	"errors"
	"fmt"
)

// Error kinds reported by the tokenizer and normalizer. Use errors.Is to test a
// returned error against them.
var (
	// ErrSyntax is an unparseable line, unmatched parenthesis or truncated record.
	ErrSyntax = errors.New("syntax error")
	// ErrMissingTTL is returned when a record has no TTL and none can be inherited.
	ErrMissingTTL = errors.New("missing TTL")
	// ErrUnterminated is returned when the stream ends inside a multi-line record.
	// It is also a syntax error.
	ErrUnterminated = errors.New("unterminated multi-line record")
)

// ParseError describes a fatal error in one file's parse.
type ParseError struct {
	Source string // logical file name
	Line   int    // line the offending record started on
	Kind   error  // one of ErrSyntax, ErrMissingTTL, ErrUnterminated
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Kind)
	}
	return fmt.Sprintf("%s:%d: %v: %s", e.Source, e.Line, e.Kind, e.Msg)
}

// Unwrap returns the error kind. An unterminated record also matches ErrSyntax.
func (e *ParseError) Unwrap() []error {
	if e.Kind == ErrUnterminated {
		return []error{ErrUnterminated, ErrSyntax}
	}
	return []error{e.Kind}
}

func syntaxErrorf(source string, line int, format string, args ...any) *ParseError {
	return &ParseError{Source: source, Line: line, Kind: ErrSyntax, Msg: fmt.Sprintf(format, args...)}
}
