package archive

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/qmchamm/confbag/bagit"
	"github.com/qmchamm/confbag/meta"
)

// softwareAgent is written as the Bag-Software-Agent tag. It carries no
// version so archives do not change between releases.
const softwareAgent = "confbag"

// uuidNamespace is the namespace for derived archive UUIDs.
var uuidNamespace = uuid.MustParse("6f1b2a7e-52c4-4d7e-9a43-3c5f0d8e9b21")

type options struct {
	deriveUUID bool
	ext        string
}

// An Option changes how an archive is written.
type Option func(*options)

// WithDerivedUUID sets the uuid attribute, when it is absent, to a
// name based (version 5) UUID of the archive name. The same configuration
// always gets the same UUID.
func WithDerivedUUID() Option {
	return func(o *options) { o.deriveUUID = true }
}

// WithExt sets the extension used for the archive name when deriving a
// UUID. It defaults to DefaultExt.
func WithExt(ext string) Option {
	return func(o *options) { o.ext = ext }
}

// DeriveUUID returns the UUID WithDerivedUUID would assign for m.
func DeriveUUID(m meta.Meta, ext string) string {
	return uuid.NewSHA1(uuidNamespace, []byte(Name(m, ext))).String()
}

// Encode writes the archive for c to w. The bag's top level directory is
// named after the archive, without its extension. Inputs are read in full
// as opaque bytes. A primary file that does not exist gives an error
// matching meta.ErrFileNotFound; other read failures give an *IOError.
func Encode(w io.Writer, c Configuration, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	m := c.Meta
	if o.deriveUUID && m.UUID == nil {
		m.UUID = meta.String(DeriveUUID(m, o.ext))
	}
	if c.XYZPath == "" {
		return &IOError{Op: "read", Path: c.XYZPath, Err: meta.ErrFileNotFound}
	}

	name := Name(m, o.ext)
	name = name[:len(name)-len(filepath.Ext(name))]
	bag := bagit.NewWriter(w, name)

	attrs := m.Attributes()
	for _, a := range attrs {
		bag.SetTag(a.Name, tagValue(a.Value))
	}
	bag.SetTag("Bag-Software-Agent", softwareAgent)

	for _, e := range c.entries() {
		if err := copyEntry(bag, e); err != nil {
			return err
		}
	}

	data, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}
	tw, err := bag.CreateTag(AttributesTag)
	if err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	return bag.Close()
}

func copyEntry(bag *bagit.Writer, e entry) error {
	f, err := os.Open(e.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = meta.ErrFileNotFound
		}
		return &IOError{Op: "read", Path: e.path, Err: err}
	}
	defer f.Close()
	out, err := bag.Create(e.name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, f); err != nil {
		return &IOError{Op: "read", Path: e.path, Err: err}
	}
	return nil
}

// Write creates the archive for c at outPath, replacing any file already
// there. The archive is built in a temporary file in the same directory
// and renamed into place, so outPath never holds a partial archive. The
// temporary file is removed on failure.
func Write(outPath string, c Configuration, opts ...Option) error {
	if _, err := os.Stat(c.XYZPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = meta.ErrFileNotFound
		}
		return &IOError{Op: "read", Path: c.XYZPath, Err: err}
	}
	dir := filepath.Dir(outPath)
	f, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*")
	if err != nil {
		return &IOError{Op: "create", Path: outPath, Err: err}
	}
	tmp := f.Name()
	err = Encode(f, c, opts...)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = &IOError{Op: "write", Path: outPath, Err: cerr}
	}
	if err == nil {
		// CreateTemp makes the file 0600
		err = os.Chmod(tmp, 0644)
	}
	if err == nil {
		if rerr := os.Rename(tmp, outPath); rerr != nil {
			err = &IOError{Op: "rename", Path: outPath, Err: rerr}
		}
	}
	if err != nil {
		os.Remove(tmp)
		var ioerr *IOError
		if !errors.As(err, &ioerr) {
			err = &IOError{Op: "write", Path: outPath, Err: err}
		}
		return err
	}
	return nil
}
