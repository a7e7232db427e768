// Package growbuf implements the retry-with-growth protocol used for OS queries whose
// result size is not known in advance.
package growbuf

import (
	"errors"
	"fmt"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
)

// ErrTooSmall is reported by a fill function when the buffer could not hold the result.
var ErrTooSmall = errors.New("buffer too small")

// TooSmallError is an ErrTooSmall that carries the capacity the source asked for.
type TooSmallError struct {
	Needed int
}

func (e *TooSmallError) Error() string {
	return fmt.Sprintf("buffer too small: need %d", e.Needed)
}

func (e *TooSmallError) Is(target error) bool { return target == ErrTooSmall }

// Policy bounds the growth loop.
type Policy struct {
	Initial    int // first capacity, in elements
	Max        int // hard capacity ceiling, in elements
	MaxRetries int // growth attempts after the first query
}

// Read calls fill with a buffer of p.Initial elements and, each time fill reports
// ErrTooSmall, retries with at least double the capacity (or the size hint, when larger).
// It gives up with a QUERY_OVERFLOW error after p.MaxRetries growths or once p.Max is
// reached. Other fill errors are returned unchanged. On success the first n elements
// are returned.
func Read[T any](p Policy, fill func(buf []T) (int, error)) ([]T, error) {
	size := p.Initial
	if size <= 0 {
		size = 1
	}
	for attempt := 0; ; attempt++ {
		buf := make([]T, size)
		n, err := fill(buf)
		if err == nil {
			if n < 0 || n > len(buf) {
				return nil, fmt.Errorf("fill reported %d elements for capacity %d", n, len(buf))
			}
			return buf[:n], nil
		}
		if !errors.Is(err, ErrTooSmall) {
			return nil, err
		}
		if attempt >= p.MaxRetries || (p.Max > 0 && size >= p.Max) {
			return nil, apperrors.WrapWithContext(apperrors.ErrCodeQueryOverflow,
				"result exceeded growth bound", err, map[string]any{
					"attempts": attempt + 1,
					"capacity": size,
				})
		}
		size = next(size, err, p.Max)
	}
}

func next(size int, err error, limit int) int {
	grown := size * 2
	var hint *TooSmallError
	if errors.As(err, &hint) && hint.Needed > grown {
		grown = hint.Needed
	}
	if limit > 0 && grown > limit {
		grown = limit
	}
	return grown
}
