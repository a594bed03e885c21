package analyser

import (
	"fmt"

	"github.com/alecthomas/participle/lexer"
)

// Error is a single user-facing diagnostic with a source position.
type Error struct {
	Pos     lexer.Position
	Message string
}

func (e Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Message) }

// ErrorSink accumulates diagnostics. Semantic errors are reported here and
// the walk continues; only internal invariant violations panic.
type ErrorSink struct {
	errors []Error
}

func (s *ErrorSink) Errorf(pos lexer.Position, format string, args ...interface{}) {
	s.errors = append(s.errors, Error{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (s *ErrorSink) Count() int      { return len(s.errors) }
func (s *ErrorSink) Errors() []Error { return s.errors }

// truncate rolls the sink back to n diagnostics, discarding newer ones.
// Used when a failed implementation is dropped rather than reported.
func (s *ErrorSink) truncate(n int) { s.errors = s.errors[:n] }
