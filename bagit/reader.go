package bagit

import (
	"archive/zip"
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/qmchamm/confbag/util"
)

// Reader gives access to the contents of a serialized bag.
type Reader struct {
	z *zip.Reader
	t Bag

	loadedTags     bool
	loadedManifest bool
	manifestErr    error
	tagManifest    map[string]*Checksum
}

// NewReader creates a bag reader which wraps r. It expects a ZIP datastream,
// and uses size to locate the zip manifest block, which is at the end.
//
// The checksums are not checked upon opening. Call Verify() to verify all the
// checksums. Tags are loaded lazily from the tag file. Ask for a tag to force
// the tag file to be read.
//
// Closing a reader does not close the underlying ReaderAt.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	in, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	result := &Reader{
		z: in,
		t: newBag(),
	}
	if len(in.File) > 0 {
		paths := strings.SplitN(in.File[0].Name, "/", 2)
		if len(paths) == 2 {
			result.t.dirname = paths[0] + "/"
		}
	}
	return result, nil
}

var (
	// ErrNotFound means a stream inside a zip file with the given name
	// could not be found.
	ErrNotFound = errors.New("stream not found")
)

// Name returns the directory name the bag unserializes into, without the
// trailing slash.
func (r *Reader) Name() string {
	return strings.TrimSuffix(r.t.dirname, "/")
}

// Open returns a reader for the file having the given name.
// Note, that inside the bag, the file is searched for from the path
// "<bag name>/data/<name>".
func (r *Reader) Open(name string) (io.ReadCloser, error) {
	return r.open("data/" + name)
}

// OpenTag returns a reader for a top level tag file, such as one written
// with Writer.CreateTag.
func (r *Reader) OpenTag(name string) (io.ReadCloser, error) {
	return r.open(name)
}

// open will open any file, not necessarily one inside the data directory.
func (r *Reader) open(name string) (io.ReadCloser, error) {
	xname := r.t.dirname + name
	for _, f := range r.z.File {
		if f.Name != xname {
			continue
		}
		return f.Open()
	}
	return nil, ErrNotFound
}

// Files returns the names of the payload files, sorted and without the
// "data/" prefix.
func (r *Reader) Files() []string {
	var result []string
	prefix := r.t.dirname + "data/"
	for _, f := range r.z.File {
		if strings.HasPrefix(f.Name, prefix) && !strings.HasSuffix(f.Name, "/") {
			result = append(result, strings.TrimPrefix(f.Name, prefix))
		}
	}
	sort.Strings(result)
	return result
}

// Tags returns the tags in bagit.txt and bag-info.txt.
func (r *Reader) Tags() map[string]string {
	if !r.loadedTags {
		r.loadedTags = true
		r.loadtagfile("bagit.txt")
		r.loadtagfile("bag-info.txt")
	}
	return r.t.tags
}

// loadtagfile parses a "Name: value" tag file. A line beginning with white
// space continues the previous tag. Lines without a colon are skipped.
func (r *Reader) loadtagfile(name string) {
	rc, err := r.open(name)
	if err != nil {
		return
	}
	defer rc.Close()
	var last string
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last != "" {
				r.t.tags[last] += " " + strings.TrimSpace(line)
			}
			continue
		}
		i := strings.Index(line, ":")
		if i == -1 {
			continue
		}
		last = strings.TrimSpace(line[:i])
		r.t.tags[last] = strings.TrimSpace(line[i+1:])
	}
}

// Checksum returns the manifest checksums of the payload file name, or nil
// if the file is not in any manifest.
func (r *Reader) Checksum(name string) *Checksum {
	if r.loadManifests() != nil {
		return nil
	}
	return r.t.manifest["data/"+name]
}

func (r *Reader) loadManifests() error {
	if r.loadedManifest {
		return r.manifestErr
	}
	r.loadedManifest = true
	r.tagManifest = make(map[string]*Checksum)
	for _, alg := range util.Algorithms {
		err := r.readmanifest("manifest-"+alg+".txt", alg, r.t.manifest)
		if err == nil {
			err = r.readmanifest("tagmanifest-"+alg+".txt", alg, r.tagManifest)
		}
		if err != nil {
			r.manifestErr = err
			return err
		}
	}
	return nil
}

// readmanifest loads one manifest file into m. A missing manifest is not an
// error.
func (r *Reader) readmanifest(name, alg string, m map[string]*Checksum) error {
	rc, err := r.open(name)
	if err == ErrNotFound {
		return nil
	} else if err != nil {
		return err
	}
	defer rc.Close()
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 || strings.TrimSpace(fields[1]) == "" {
			return fmt.Errorf("bagit: %s: malformed line %q", name, line)
		}
		sum, err := hex.DecodeString(fields[0])
		if err != nil {
			return fmt.Errorf("bagit: %s: bad checksum %q", name, fields[0])
		}
		// md5sum marks binary files with a leading asterisk
		fname := strings.TrimPrefix(strings.TrimSpace(fields[1]), "*")
		c := m[fname]
		if c == nil {
			c = new(Checksum)
			m[fname] = c
		}
		c.set(alg, sum)
	}
	return scanner.Err()
}

// Verify checks the bag for completeness and checks every checksum in the
// manifests. Every payload file must be listed in a manifest, and every
// manifest entry must exist. Tag files listed in a tag manifest may be
// missing, but if present their checksums must match.
func (r *Reader) Verify() error {
	if err := r.loadManifests(); err != nil {
		return err
	}
	present := make(map[string]*zip.File)
	for _, f := range r.z.File {
		if strings.HasPrefix(f.Name, r.t.dirname) {
			present[strings.TrimPrefix(f.Name, r.t.dirname)] = f
		}
	}
	for name := range present {
		if strings.HasPrefix(name, "data/") && !strings.HasSuffix(name, "/") {
			if _, ok := r.t.manifest[name]; !ok {
				return fmt.Errorf("bagit: payload file %s is not in a manifest", name)
			}
		}
	}
	for name, ck := range r.t.manifest {
		f, ok := present[name]
		if !ok {
			return fmt.Errorf("bagit: %s is in the manifest but missing", name)
		}
		if err := verifyFile(f, ck); err != nil {
			return err
		}
	}
	for name, ck := range r.tagManifest {
		f, ok := present[name]
		if !ok {
			continue
		}
		if err := verifyFile(f, ck); err != nil {
			return err
		}
	}
	return nil
}

func verifyFile(f *zip.File, ck *Checksum) error {
	goals := make(map[string]string)
	for _, alg := range util.Algorithms {
		if sum := ck.get(alg); len(sum) > 0 {
			goals[alg] = hex.EncodeToString(sum)
		}
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	ok, err := util.VerifyStream(rc, goals)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bagit: checksum mismatch for %s", f.Name)
	}
	return nil
}
