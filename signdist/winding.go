package signdist

import (
	"fmt"
	"strings"
)

// Winding is the policy deciding whether a point is inside a surface.
type Winding int

const (
	// EvenOdd classifies a point as inside when a ray from it crosses the
	// surface an odd number of times. Orientation is ignored.
	EvenOdd Winding = iota
	// NonZero classifies a point as inside when the signed crossing count
	// (+1 exiting a front face, -1 entering one) is not zero.
	NonZero
	// Negative classifies a point as inside when the signed crossing count is
	// negative, which is the interior of surfaces whose normals point inward.
	Negative
	// Normals takes the sign from the angle weighted pseudo normal of the
	// surface feature closest to the point. No rays are cast.
	Normals
)

var windingNames = [...]string{
	EvenOdd:  "EVEN_ODD",
	NonZero:  "WINDING",
	Negative: "NEGATIVE",
	Normals:  "NORMALS",
}

func (w Winding) String() string {
	if w < 0 || int(w) >= len(windingNames) {
		return fmt.Sprintf("Winding(%d)", int(w))
	}
	return windingNames[w]
}

// Valid reports whether w is one of the defined policies.
func (w Winding) Valid() bool { return w >= EvenOdd && w <= Normals }

// ParseWinding returns the policy named s. Matching is case insensitive and
// NONZERO is accepted as an alias of WINDING.
func ParseWinding(s string) (Winding, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	if s == "NONZERO" || s == "NON_ZERO" {
		return NonZero, nil
	}
	for i, name := range windingNames {
		if s == name {
			return Winding(i), nil
		}
	}
	return 0, fmt.Errorf("unknown winding policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (w Winding) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("invalid winding policy %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Winding) UnmarshalText(b []byte) error {
	v, err := ParseWinding(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}
