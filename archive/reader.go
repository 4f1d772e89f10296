package archive

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/qmchamm/confbag/bagit"
	"github.com/qmchamm/confbag/meta"
)

// Reader reads back an archive made by Write or Encode.
type Reader struct {
	bag   *bagit.Reader
	attrs map[string]any
	f     *os.File // set when opened by OpenFile
}

// Open reads the archive held in r, which is size bytes long.
func Open(r io.ReaderAt, size int64) (*Reader, error) {
	bag, err := bagit.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return &Reader{bag: bag}, nil
}

// OpenFile opens the archive at path. Close the Reader when done.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	r, err := Open(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.f = f
	return r, nil
}

// Close releases the file opened by OpenFile. It does nothing for a Reader
// made by Open.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

// Name returns the archive's bag name, such as "P150T2000_config_60".
func (r *Reader) Name() string {
	return r.bag.Name()
}

// Attributes returns the archive's attributes. Integers are int, floats
// are float64 and everything else is a string.
func (r *Reader) Attributes() (map[string]any, error) {
	if r.attrs != nil {
		return r.attrs, nil
	}
	rc, err := r.bag.OpenTag(AttributesTag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", AttributesTag, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeAttributes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", AttributesTag, err)
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	r.attrs = attrs
	return attrs, nil
}

// Meta rebuilds the configuration metadata from the attributes. Attributes
// that do not fit their field are reported in the error, the rest are set.
func (r *Reader) Meta() (meta.Meta, error) {
	attrs, err := r.Attributes()
	if err != nil {
		return meta.Meta{}, err
	}
	return meta.FromAttributes(attrs)
}

// Entries returns the sorted names of the data entries.
func (r *Reader) Entries() []string {
	return r.bag.Files()
}

// Entry returns the content of the named data entry.
func (r *Reader) Entry(name string) ([]byte, error) {
	rc, err := r.bag.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Checksum returns the hex SHA-256 recorded in the manifest for the named
// data entry, or "" if it has none.
func (r *Reader) Checksum(name string) string {
	ck := r.bag.Checksum(name)
	if ck == nil {
		return ""
	}
	return hex.EncodeToString(ck.SHA256)
}

// Tags returns the bag's tags, including the attributes as text.
func (r *Reader) Tags() map[string]string {
	return r.bag.Tags()
}

// Verify checks every entry against the bag's checksums.
func (r *Reader) Verify() error {
	return r.bag.Verify()
}
