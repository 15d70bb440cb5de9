// Package split parses dataset slice expressions such as "train",
// "train[:1%]" or "validation[10:200]".
package split

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bound is one end of a slice. Unset bounds mean "from the start" or "to the
// end". Negative values count from the end.
type Bound struct {
	Set     bool
	Value   int
	Percent bool
}

// Split is a parsed slice expression.
type Split struct {
	Name string
	From Bound
	To   Bound
}

var errEmpty = errors.New("split expression is empty")

// Parse parses name, name[from:to] with integer or percent bounds.
func Parse(expr string) (Split, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Split{}, errEmpty
	}

	open := strings.IndexByte(expr, '[')
	if open < 0 {
		if !validName(expr) {
			return Split{}, fmt.Errorf("invalid split name %q", expr)
		}
		return Split{Name: expr}, nil
	}
	if !strings.HasSuffix(expr, "]") {
		return Split{}, fmt.Errorf("split %q: missing closing bracket", expr)
	}
	name := strings.TrimSpace(expr[:open])
	if !validName(name) {
		return Split{}, fmt.Errorf("invalid split name %q", name)
	}
	body := expr[open+1 : len(expr)-1]
	from, to, ok := strings.Cut(body, ":")
	if !ok {
		return Split{}, fmt.Errorf("split %q: slice must contain ':'", expr)
	}

	s := Split{Name: name}
	var err error
	if s.From, err = parseBound(from); err != nil {
		return Split{}, fmt.Errorf("split %q: %w", expr, err)
	}
	if s.To, err = parseBound(to); err != nil {
		return Split{}, fmt.Errorf("split %q: %w", expr, err)
	}
	return s, nil
}

func parseBound(raw string) (Bound, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Bound{}, nil
	}
	b := Bound{Set: true}
	if strings.HasSuffix(raw, "%") {
		b.Percent = true
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return Bound{}, fmt.Errorf("invalid bound %q", raw)
	}
	if b.Percent && (v < -100 || v > 100) {
		return Bound{}, fmt.Errorf("percent bound %d%% out of range", v)
	}
	b.Value = v
	return b, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

// Range resolves the slice against a split of n records and returns the
// half-open [start, end) window. Percent bounds round half to even.
func (s Split) Range(n int) (start, end int) {
	start = s.From.resolve(n, 0)
	end = s.To.resolve(n, n)
	if end < start {
		end = start
	}
	return start, end
}

func (b Bound) resolve(n, unset int) int {
	if !b.Set {
		return unset
	}
	v := b.Value
	if b.Percent {
		v = int(math.RoundToEven(float64(n) * float64(b.Value) / 100))
	}
	if v < 0 {
		v += n
	}
	return min(max(v, 0), n)
}

func (s Split) String() string {
	if !s.From.Set && !s.To.Set {
		return s.Name
	}
	return s.Name + "[" + s.From.String() + ":" + s.To.String() + "]"
}

func (b Bound) String() string {
	if !b.Set {
		return ""
	}
	if b.Percent {
		return strconv.Itoa(b.Value) + "%"
	}
	return strconv.Itoa(b.Value)
}
