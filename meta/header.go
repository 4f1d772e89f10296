package meta

import (
	"errors"
	"io/fs"
	"sort"

	"github.com/qmchamm/confbag/xyz"
)

// aliases maps header keys that differ from the canonical field names.
// Canonical names are accepted as they are and do not need an entry.
var aliases = map[string]string{
	"config":                  "config_number",
	"phase":                   "state",
	"P":                       "pressure",
	"T":                       "temperature",
	"MD-type":                 "MD_type",
	"md-type":                 "MD_type",
	"md_type":                 "MD_type",
	"simulation-type":         "simulation_type",
	"model-name":              "modelname",
	"model_name":              "modelname",
	"model":                   "modelname",
	"molecular-percentage":    "molecular_percentage",
	"mol_percent":             "molecular_percentage",
	"config-gen-date":         "config_gen_date",
	"qmc-machine":             "qmc_machine",
	"QMC-run-date":            "QMC_run_date",
	"qmc_run_date":            "QMC_run_date",
	"QMC-quality":             "QMC_quality",
	"qmc_quality":             "QMC_quality",
	"electron-kinetic-energy": "electron_kinetic_energy",
	"potential-energy":        "potential_energy",
	"fsc-potential-energy":    "fsc_potential_energy",
	"fsc-kinetic-energy":      "fsc_kinetic_energy",
}

// CanonicalName returns the field name a header key maps to, and false if
// the key has no counterpart in Meta.
func CanonicalName(key string) (string, bool) {
	if name, ok := aliases[key]; ok {
		key = name
	}
	_, ok := fieldIndex[key]
	return key, ok
}

// FromHeader builds a Meta from the key/value map of a structure file
// header. Keys are renamed through the alias table, keys with no canonical
// field are dropped, and each value is coerced to its field's type. A value
// that fails coercion only loses its own field. An unknown phase leaves
// State absent.
//
// When a canonical key and one of its aliases are both present, the
// canonical key wins.
func FromHeader(info map[string]any) Meta {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	// aliases first, so canonical keys are applied last and win
	sort.Slice(keys, func(i, j int) bool {
		_, ai := aliases[keys[i]]
		_, aj := aliases[keys[j]]
		if ai != aj {
			return ai
		}
		return keys[i] < keys[j]
	})

	var m Meta
	for _, k := range keys {
		name, ok := CanonicalName(k)
		if !ok {
			continue
		}
		f, _ := Lookup(name)
		// a bad value drops this key only
		_ = f.Set(&m, info[k])
	}
	return m
}

// ReadHeader parses the structure file at path and resolves its header into
// a Meta. The parsed frame is returned as well. A missing file gives an
// error matching ErrFileNotFound; a file the reader cannot parse gives a
// *MalformedHeaderError.
func ReadHeader(path string) (Meta, *xyz.Frame, error) {
	frame, err := xyz.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Meta{}, nil, &fs.PathError{Op: "read header", Path: path, Err: ErrFileNotFound}
		}
		var perr *fs.PathError
		if errors.As(err, &perr) {
			// could not open it; not a parse problem
			return Meta{}, nil, err
		}
		herr := &MalformedHeaderError{Path: path, Err: err}
		var xerr *xyz.ParseError
		if errors.As(err, &xerr) {
			herr.Line = xerr.Line
		}
		return Meta{}, nil, herr
	}
	return FromHeader(frame.Info), frame, nil
}
