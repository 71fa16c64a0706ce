package profiling

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fllarpy/perf-probe/domain"
)

// Restriction narrows the list of frames reported for a request. Frames are
// already sorted by duration when restrictions run, so each one sees the
// output of the previous.
type Restriction interface {
	Apply(frames []domain.Frame) []domain.Frame
	String() string
}

// Limit keeps the first N frames.
type Limit int

func (l Limit) Apply(frames []domain.Frame) []domain.Frame {
	return frames[:clamp(int(l), len(frames))]
}

func (l Limit) String() string { return "limit " + strconv.Itoa(int(l)) }

// Fraction keeps the leading share of frames, in (0, 1].
type Fraction float64

func (f Fraction) Apply(frames []domain.Frame) []domain.Frame {
	n := int(float64(len(frames)) * float64(f))
	return frames[:clamp(n, len(frames))]
}

func clamp(n, size int) int {
	if n < 0 {
		return 0
	}
	if n > size {
		return size
	}
	return n
}

func (f Fraction) String() string { return "fraction " + strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Match keeps frames whose name or statement matches the expression.
type Match struct {
	re *regexp.Regexp
}

func NewMatch(expr string) (Match, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Match{}, err
	}
	return Match{re: re}, nil
}

func (m Match) Apply(frames []domain.Frame) []domain.Frame {
	kept := make([]domain.Frame, 0, len(frames))
	for _, f := range frames {
		if m.re.MatchString(f.Name) || (f.Statement != "" && m.re.MatchString(f.Statement)) {
			kept = append(kept, f)
		}
	}
	return kept
}

func (m Match) String() string { return "match " + m.re.String() }

// ParseRestrictions converts configuration values into restrictions.
// Integers become Limit, floats become Fraction and other strings become
// Match. Numeric strings, as read from the environment, are parsed first.
func ParseRestrictions(values []any) ([]Restriction, error) {
	restrictions := make([]Restriction, 0, len(values))
	for i, v := range values {
		r, err := parseRestriction(v)
		if err != nil {
			return nil, fmt.Errorf("restriction %d: %w", i, err)
		}
		restrictions = append(restrictions, r)
	}
	return restrictions, nil
}

func parseRestriction(v any) (Restriction, error) {
	switch val := v.(type) {
	case Limit:
		return newLimit(int64(val))
	case Fraction:
		return newFraction(float64(val))
	case Match:
		if val.re == nil {
			return nil, fmt.Errorf("match without an expression")
		}
		return val, nil
	case Restriction:
		return val, nil
	case int:
		return newLimit(int64(val))
	case int64:
		return newLimit(val)
	case int32:
		return newLimit(int64(val))
	case uint:
		return newLimit(int64(val))
	case float32:
		return newFraction(float64(val))
	case float64:
		return newFraction(val)
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return newLimit(n)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return newFraction(f)
		}
		return NewMatch(s)
	default:
		return nil, fmt.Errorf("unsupported restriction %v (%T)", v, v)
	}
}

func newLimit(n int64) (Restriction, error) {
	if n < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", n)
	}
	return Limit(n), nil
}

func newFraction(f float64) (Restriction, error) {
	if f <= 0 || f > 1 {
		return nil, fmt.Errorf("fraction must be in (0, 1], got %v", f)
	}
	return Fraction(f), nil
}
