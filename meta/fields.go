package meta

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the value type of a field.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindState:
		return "state"
	}
	return "unknown"
}

// Field describes one member of Meta. Name is the canonical name, which is
// also the archive attribute key.
type Field struct {
	Name string
	Kind Kind
	get  func(*Meta) (any, bool)
	set  func(*Meta, any)
}

// Fields lists every field of Meta in archive order. This is the only place
// a field needs registering.
var Fields = []Field{
	intField("config_number", func(m *Meta) **int { return &m.ConfigNumber }),
	stringField("uuid", func(m *Meta) **string { return &m.UUID }),
	intField("pressure", func(m *Meta) **int { return &m.Pressure }),
	intField("temperature", func(m *Meta) **int { return &m.Temperature }),
	stateField("state", func(m *Meta) **State { return &m.State }),
	floatField("rs", func(m *Meta) **float64 { return &m.Rs }),
	floatField("molecular_percentage", func(m *Meta) **float64 { return &m.MolecularPercentage }),
	stringField("MD_type", func(m *Meta) **string { return &m.MDType }),
	stringField("method", func(m *Meta) **string { return &m.Method }),
	stringField("code", func(m *Meta) **string { return &m.Code }),
	stringField("modelname", func(m *Meta) **string { return &m.ModelName }),
	stringField("simulation_type", func(m *Meta) **string { return &m.SimulationType }),
	intField("timestep", func(m *Meta) **int { return &m.Timestep }),
	stringField("config_gen_date", func(m *Meta) **string { return &m.ConfigGenDate }),
	stringField("author", func(m *Meta) **string { return &m.Author }),
	stringField("qmc_machine", func(m *Meta) **string { return &m.QMCMachine }),
	stringField("QMC_run_date", func(m *Meta) **string { return &m.QMCRunDate }),
	intField("QMC_quality", func(m *Meta) **int { return &m.QMCQuality }),
	floatField("energy", func(m *Meta) **float64 { return &m.Energy }),
	floatField("electron_kinetic_energy", func(m *Meta) **float64 { return &m.ElectronKineticEnergy }),
	floatField("potential_energy", func(m *Meta) **float64 { return &m.PotentialEnergy }),
	floatField("fsc_potential_energy", func(m *Meta) **float64 { return &m.FSCPotentialEnergy }),
	floatField("fsc_kinetic_energy", func(m *Meta) **float64 { return &m.FSCKineticEnergy }),
}

var fieldIndex = make(map[string]int, len(Fields))

func init() {
	for i, f := range Fields {
		fieldIndex[f.Name] = i
	}
}

// Lookup returns the field with the given canonical name.
func Lookup(name string) (Field, bool) {
	i, ok := fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return Fields[i], true
}

// Get returns the field's value in m and whether it is present. The value
// has the Go type matching the field's Kind: int, float64, string or State.
func (f Field) Get(m *Meta) (any, bool) {
	return f.get(m)
}

// Set coerces value to the field's Kind and stores it in m. If the value
// cannot be coerced, m is left alone and an error is returned.
func (f Field) Set(m *Meta, value any) error {
	v, err := coerce(f.Kind, value)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	f.set(m, v)
	return nil
}

// Attribute is one present field, as written into an archive. State values
// are carried as their string tag.
type Attribute struct {
	Name  string
	Value any
}

// Attributes returns the present fields of m in Fields order.
func (m Meta) Attributes() []Attribute {
	var result []Attribute
	for _, f := range Fields {
		v, ok := f.get(&m)
		if !ok {
			continue
		}
		if s, isState := v.(State); isState {
			v = s.String()
		}
		result = append(result, Attribute{Name: f.Name, Value: v})
	}
	return result
}

// FromAttributes rebuilds a Meta from archive attributes. Names outside
// Fields are ignored. Values that do not fit their field are reported
// together in the returned error, but every field that does fit is set.
func FromAttributes(attrs map[string]any) (Meta, error) {
	var m Meta
	var errs []error
	for _, f := range Fields {
		v, ok := attrs[f.Name]
		if !ok {
			continue
		}
		if err := f.Set(&m, v); err != nil {
			errs = append(errs, err)
		}
	}
	return m, errors.Join(errs...)
}

func intField(name string, p func(*Meta) **int) Field {
	return Field{
		Name: name,
		Kind: KindInt,
		get: func(m *Meta) (any, bool) {
			if v := *p(m); v != nil {
				return *v, true
			}
			return nil, false
		},
		set: func(m *Meta, v any) {
			if v == nil {
				*p(m) = nil
				return
			}
			x := v.(int)
			*p(m) = &x
		},
	}
}

func floatField(name string, p func(*Meta) **float64) Field {
	return Field{
		Name: name,
		Kind: KindFloat,
		get: func(m *Meta) (any, bool) {
			if v := *p(m); v != nil {
				return *v, true
			}
			return nil, false
		},
		set: func(m *Meta, v any) {
			if v == nil {
				*p(m) = nil
				return
			}
			x := v.(float64)
			*p(m) = &x
		},
	}
}

func stringField(name string, p func(*Meta) **string) Field {
	return Field{
		Name: name,
		Kind: KindString,
		get: func(m *Meta) (any, bool) {
			if v := *p(m); v != nil {
				return *v, true
			}
			return nil, false
		},
		set: func(m *Meta, v any) {
			if v == nil {
				*p(m) = nil
				return
			}
			x := v.(string)
			*p(m) = &x
		},
	}
}

func stateField(name string, p func(*Meta) **State) Field {
	return Field{
		Name: name,
		Kind: KindState,
		get: func(m *Meta) (any, bool) {
			if v := *p(m); v != nil {
				return *v, true
			}
			return nil, false
		},
		set: func(m *Meta, v any) {
			if v == nil {
				*p(m) = nil
				return
			}
			x := v.(State)
			*p(m) = &x
		},
	}
}

var (
	errNotInteger = errors.New("not an integer")
	errNotNumber  = errors.New("not a number")
	errBadState   = errors.New("not a known state")
)

// coerce converts value into the Go type used for kind.
func coerce(kind Kind, value any) (any, error) {
	switch kind {
	case KindInt:
		return toInt(value)
	case KindFloat:
		return toFloat(value)
	case KindString:
		return toString(value), nil
	case KindState:
		switch v := value.(type) {
		case State:
			if _, ok := stateNames[v]; ok {
				return v, nil
			}
		case string:
			if s, ok := ParseState(v); ok {
				return s, nil
			}
		}
		return nil, errBadState
	}
	return nil, fmt.Errorf("unknown kind %d", kind)
}

func toInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return nil, errNotInteger
		}
		return int(v), nil
	case uint:
		if v > math.MaxInt {
			return nil, errNotInteger
		}
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		if v > math.MaxInt {
			return nil, errNotInteger
		}
		return int(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, errNotInteger
		}
		return n, nil
	}
	return nil, errNotInteger
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
		return nil, errNotInteger
	}
	return int(f), nil
}

func toFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errNotNumber
		}
		return f, nil
	case bool:
		return nil, errNotNumber
	}
	n, err := toInt(value)
	if err != nil {
		return nil, errNotNumber
	}
	return float64(n.(int)), nil
}

// toString renders any scalar as text. Lists and maps get their Go
// textual form, so future non-scalar values are kept rather than rejected.
//
// The result is always valid UTF-8; invalid bytes (e.g. a Latin-1 name in a
// header) become U+FFFD.
func toString(value any) string {
	return strings.ToValidUTF8(formatString(value), "\uFFFD")
}

func formatString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case State:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return fmt.Sprint(value)
}
