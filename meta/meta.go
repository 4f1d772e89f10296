/*
Package meta holds the canonical metadata record for one configuration and
the routines that build it, either from the P<n>T<n>config<n> naming
convention or from the key/value header of an extended XYZ file.

Every field of a Meta is optional. A nil pointer means the value is unknown,
which is the common case. There is no cross-field validation.

The set of fields is declared once, in Fields. Archiving, reading archives
back, header coercion and display all walk that list, so a new field needs
a struct member and one entry in Fields and nothing else.
*/
package meta

import (
	"fmt"
	"strings"
)

// Meta is the canonical metadata record of a configuration.
type Meta struct {
	// identity
	ConfigNumber *int
	UUID         *string

	// thermodynamic
	Pressure    *int
	Temperature *int
	State       *State

	// material
	Rs                  *float64
	MolecularPercentage *float64

	// simulation provenance
	MDType         *string
	Method         *string
	Code           *string
	ModelName      *string
	SimulationType *string
	Timestep       *int

	// bookkeeping
	ConfigGenDate *string
	Author        *string
	QMCMachine    *string
	QMCRunDate    *string
	QMCQuality    *int

	// energetics, in eV
	Energy                *float64
	ElectronKineticEnergy *float64
	PotentialEnergy       *float64
	FSCPotentialEnergy    *float64
	FSCKineticEnergy      *float64
}

// State is the phase of a configuration.
type State int

// The zero State is not a valid phase; absent states are nil pointers.
const (
	Solid State = iota + 1
	Liquid
	Ambiguous
)

var stateNames = map[State]string{
	Solid:     "solid",
	Liquid:    "liquid",
	Ambiguous: "ambiguous",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState maps a phase string onto a State, ignoring case. The second
// return is false for anything outside the known set, including older
// phase names such as "molten"; it never fails in any other way.
func ParseState(s string) (State, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for state, name := range stateNames {
		if name == s {
			return state, true
		}
	}
	return 0, false
}

// MarshalText writes the state as its string tag.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("meta: invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText. Unknown tags are an error
// here, since an archive should only ever hold canonical tags.
func (s *State) UnmarshalText(b []byte) error {
	v, ok := ParseState(string(b))
	if !ok {
		return fmt.Errorf("meta: unknown state %q", string(b))
	}
	*s = v
	return nil
}

// Int, Float, String and StateOf return pointers to their argument. They
// make literal Meta values easier to write.
func Int(v int) *int           { return &v }
func Float(v float64) *float64 { return &v }
func String(v string) *string  { return &v }
func StateOf(v State) *State   { return &v }

// Merge returns m with every field present in other copied over it.
func (m Meta) Merge(other Meta) Meta {
	for _, f := range Fields {
		if v, ok := f.get(&other); ok {
			f.set(&m, v)
		}
	}
	return m
}
