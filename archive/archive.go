// Package archive packages one configuration, its structure file plus any
// companion analysis files, into a self-describing archive.
//
// An archive is a BagIt bag serialized as an uncompressed zip. Each input
// file is a payload entry, and the configuration's metadata is stored in
// the tag file attributes.cbor and repeated in bag-info.txt. Writing the
// same inputs twice gives byte-identical archives.
package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/qmchamm/confbag/meta"
)

// Entry names inside an archive.
const (
	XYZEntry        = "xyz_data"
	SofkEntry       = "sofk_data"
	GofrEntry       = "gofr_data"
	ElectronicEntry = "electronic_sk_data"

	// AttributesTag is the tag file holding the CBOR encoded attributes.
	AttributesTag = "attributes.cbor"
)

// Configuration is one structure file, its metadata, and the companion
// files found next to it. An empty companion path means it is absent.
type Configuration struct {
	Meta     meta.Meta
	XYZPath  string
	SofkPath string
	GofrPath string
	SkPath   string
}

// entry pairs an archive entry name with the file that supplies it.
type entry struct {
	name string
	path string
}

// entries lists the inputs present in c in archive order.
func (c Configuration) entries() []entry {
	all := []entry{
		{XYZEntry, c.XYZPath},
		{SofkEntry, c.SofkPath},
		{GofrEntry, c.GofrPath},
		{ElectronicEntry, c.SkPath},
	}
	var result []entry
	for _, e := range all {
		if e.path != "" {
			result = append(result, e)
		}
	}
	return result
}

// Discover returns a Configuration for the structure file at xyzPath with
// the companion files that exist next to it. For "dir/foo.xyz" they are
// "dir/foo_sofk.txt", "dir/foo_gofr.txt" and "dir/foo.sk". Only regular
// files count. A missing companion is not an error. Meta is left empty.
func Discover(xyzPath string) Configuration {
	stem := strings.TrimSuffix(xyzPath, filepath.Ext(xyzPath))
	return Configuration{
		XYZPath:  xyzPath,
		SofkPath: ifRegular(stem + "_sofk.txt"),
		GofrPath: ifRegular(stem + "_gofr.txt"),
		SkPath:   ifRegular(stem + ".sk"),
	}
}

func ifRegular(path string) string {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return ""
	}
	return path
}
