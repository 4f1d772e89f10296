package archive

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qmchamm/confbag/meta"
)

// DefaultExt is the archive file extension used when none is given.
const DefaultExt = "zip"

// missing is written in place of an absent name component.
const missing = "NA"

// Name returns the archive file name for m, "P<p>T<t>_config_<n>.<ext>".
// An empty ext means DefaultExt. Absent fields are written as "NA".
func Name(m meta.Meta, ext string) string {
	if ext == "" {
		ext = DefaultExt
	}
	ext = strings.TrimPrefix(ext, ".")
	return "P" + intOrNA(m.Pressure) + "T" + intOrNA(m.Temperature) +
		"_config_" + intOrNA(m.ConfigNumber) + "." + ext
}

// RemoteKey returns the store key for the archive called name,
// "P<p>/T<t>/<name>". Only the base of name is used.
func RemoteKey(m meta.Meta, name string) string {
	return "P" + intOrNA(m.Pressure) + "/T" + intOrNA(m.Temperature) + "/" + filepath.Base(name)
}

func intOrNA(v *int) string {
	if v == nil {
		return missing
	}
	return strconv.Itoa(*v)
}
