package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	pressureRE    = regexp.MustCompile(`P(\d+)`)
	temperatureRE = regexp.MustCompile(`T(\d+)`)
	configRE      = regexp.MustCompile(`config(\d+)`)

	pressureDirRE    = regexp.MustCompile(`^P(\d+)`)
	temperatureDirRE = regexp.MustCompile(`^T(\d+)`)
)

type nameOptions struct {
	offset int
}

// A NameOption adjusts how ParseName reads a name.
type NameOption func(*nameOptions)

// WithConfigOffset subtracts offset from the config number found in the
// name. Some runs number configurations from a machine local base (e.g. 100)
// and need it removed to get the canonical index.
func WithConfigOffset(offset int) NameOption {
	return func(o *nameOptions) { o.offset = offset }
}

// ParseName extracts pressure, temperature and config number from a file or
// directory name such as "P150T2000config60". Only the last path element is
// looked at. Each value is the first run of digits after the leftmost
// occurrence of its prefix. Ranges are not checked.
func ParseName(name string, opts ...NameOption) (Meta, error) {
	var o nameOptions
	for _, opt := range opts {
		opt(&o)
	}
	base := filepath.Base(name)
	var m Meta
	var err error
	if m.Pressure, err = firstInt(pressureRE, base, "P"); err != nil {
		return Meta{}, err
	}
	if m.Temperature, err = firstInt(temperatureRE, base, "T"); err != nil {
		return Meta{}, err
	}
	if m.ConfigNumber, err = firstInt(configRE, base, "config"); err != nil {
		return Meta{}, err
	}
	*m.ConfigNumber -= o.offset
	return m, nil
}

func firstInt(re *regexp.Regexp, s, prefix string) (*int, error) {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil, &MalformedNameError{Name: s, Prefix: prefix}
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		// only possible on overflow
		return nil, &MalformedNameError{Name: s, Prefix: prefix}
	}
	return &n, nil
}

// ParsePressureDir reads the pressure from a directory named like "P225".
// The name must start with the prefix.
func ParsePressureDir(name string) (int, error) {
	p, err := firstInt(pressureDirRE, strings.TrimSpace(name), "P")
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// ParseTemperatureDir reads the temperature from a directory named like
// "T1000". The name must start with the prefix.
func ParseTemperatureDir(name string) (int, error) {
	t, err := firstInt(temperatureDirRE, strings.TrimSpace(name), "T")
	if err != nil {
		return 0, err
	}
	return *t, nil
}
