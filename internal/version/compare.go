package version

import (
	"errors"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ErrInvalid is returned when a version string cannot be parsed
var ErrInvalid = errors.New("invalid version")

// Operator is a single bound comparison used by range checks
type Operator string

// Range bound operators
const (
	GreaterOrEqual Operator = ">="
	Greater        Operator = ">"
	LessOrEqual    Operator = "<="
	Less           Operator = "<"
)

// Parse parses a dotted version such as "1.25.3", "v2.0" or "18.0.0-rc.1"
func Parse(raw string) (*goversion.Version, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalid)
	}

	v, err := goversion.NewVersion(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalid, raw, err)
	}
	return v, nil
}

// Compare returns -1, 0 or 1 when a is less than, equal to or greater than b.
// Missing trailing segments compare as zero, so "1.25" equals "1.25.0".
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}

	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}

	return va.Compare(vb), nil
}

// Satisfies reports whether v op bound holds. Any parse failure on either
// side yields false.
func Satisfies(v string, op Operator, bound string) bool {
	cmp, err := Compare(v, bound)
	if err != nil {
		return false
	}

	switch op {
	case GreaterOrEqual:
		return cmp >= 0
	case Greater:
		return cmp > 0
	case LessOrEqual:
		return cmp <= 0
	case Less:
		return cmp < 0
	default:
		return false
	}
}
