package bagit

import (
	"archive/zip"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/qmchamm/confbag/util"
)

// Writer allows for writing a new bag file. When it is closed, all the
// relevant tag files and manifests will be written out.
type Writer struct {
	z        *zip.Writer      // the underlying zip writer
	t        Bag              // our bag structure to track the files
	checksum *Checksum        // pointer to current checksum
	hw       *util.HashWriter // current hash writer
	ns       int              // number of "streams" (i.e. payload files)
	sz       int64            // size of the payload files, in bytes
	payload  bool             // true if the current stream is a payload file
}

// NewWriter creates a new bag writer which will serialize itself to the
// provided io.Writer. Use name to set the directory name the bag will
// unserialize into, as BagIt requires.
func NewWriter(w io.Writer, name string) *Writer {
	t := newBag()
	t.dirname = name + "/"
	return &Writer{
		z: zip.NewWriter(w),
		t: t,
	}
}

// Close this Writer and serialize all necessary bookkeeping files. It does
// not close the original io.Writer provided to NewWriter().
func (w *Writer) Close() error {
	w.finish()
	w.t.tags["Payload-Oxum"] = fmt.Sprintf("%d.%d", w.sz, w.ns)
	w.t.tags["Bag-Size"] = humansize(w.sz)

	// If Close() is called after a write error, then this first
	// call will also fail with an error.
	err := w.writeTags()
	if err != nil {
		return err
	}
	err = w.writeManifests()
	if err != nil {
		return err
	}
	return w.z.Close()
}

// SetTag adds the given tag to this bag, and sets it to be equal to content.
// The bag writer will add the tags "Payload-Oxum" and "Bag-Size" itself.
// Other useful tags are listed in the BagIt specification.
func (w *Writer) SetTag(tag, content string) {
	w.t.tags[tag] = content
}

// Create a new file inside this bag. The file will be put inside the "data/"
// directory.
func (w *Writer) Create(name string) (io.Writer, error) {
	out, err := w.create("data/" + name)
	if err == nil {
		w.ns++
		w.payload = true
	}
	return out, err
}

// CreateTag creates an extra tag file at the top of the bag, next to
// bag-info.txt. Tag files are listed in the tag manifest.
func (w *Writer) CreateTag(name string) (io.Writer, error) {
	if strings.HasPrefix(name, "data/") || isReserved(name) {
		return nil, fmt.Errorf("bagit: %s is not a valid tag file name", name)
	}
	return w.create(name)
}

// create is for internal use. It allows non-payload files to be written.
func (w *Writer) create(name string) (io.Writer, error) {
	w.finish()

	ck := new(Checksum)
	w.t.manifest[name] = ck
	w.checksum = ck

	header := zip.FileHeader{
		Name:     w.t.dirname + name,
		Method:   zip.Store,
		Modified: ModTime,
	}
	out, err := w.z.CreateHeader(&header)
	if err != nil {
		w.hw = nil
		return nil, err
	}
	w.hw = util.NewHashWriter(out)
	return w.hw, nil
}

// finish saves the checksums of the stream currently being written, if any.
func (w *Writer) finish() {
	if w.hw == nil || w.checksum == nil {
		return
	}
	for _, alg := range util.Algorithms {
		w.checksum.set(alg, w.hw.Sum(alg))
	}
	if w.payload {
		w.sz += w.hw.Size()
	}
	w.hw = nil
	w.checksum = nil
	w.payload = false
}

func (w *Writer) writeTags() error {
	// first write bag-it marker file
	out, err := w.create("bagit.txt")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "BagIt-Version: %s\n", Version)
	fmt.Fprintf(out, "Tag-File-Character-Encoding: UTF-8\n")

	// now write tags file
	out, err = w.create("bag-info.txt")
	if err != nil {
		return err
	}
	for _, k := range sortedKeys(w.t.tags) {
		fmt.Fprintf(out, "%s: %s\n", k, w.t.tags[k])
	}
	return nil
}

func (w *Writer) writeManifests() error {
	// ensure any pending checksum is saved
	w.finish()

	for _, alg := range util.Algorithms {
		if err := w.manifest(false, alg); err != nil {
			return err
		}
	}
	// the tag manifest is computed after the payload manifests so that
	// it covers them
	return w.manifest(true, "md5")
}

func (w *Writer) manifest(istag bool, alg string) error {
	var lines []string
	for fname, checksum := range w.t.manifest {
		// tag manifests only include files NOT having the prefix "data/"
		// non-tag manifests only include "data/" files
		if istag == strings.HasPrefix(fname, "data/") {
			continue
		}
		h := checksum.get(alg)
		if len(h) == 0 {
			continue
		}
		// The 2 spaces is to be identical to the GNU md5sum output.
		lines = append(lines, fmt.Sprintf("%s  %s\n", hex.EncodeToString(h), fname))
	}
	if len(lines) == 0 {
		return nil
	}
	sort.Strings(lines)
	mname := "manifest-" + alg + ".txt"
	if istag {
		mname = "tag" + mname
	}
	out, err := w.create(mname)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := io.WriteString(out, line); err != nil {
			return err
		}
	}
	w.finish()
	return nil
}

func isReserved(name string) bool {
	return name == "bagit.txt" || name == "bag-info.txt" ||
		strings.HasPrefix(name, "manifest-") || strings.HasPrefix(name, "tagmanifest-")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metric constants for humansize. Lowercased so as to be unexported.
const (
	kb int64 = 1000
	mb       = 1000 * kb
	gb       = 1000 * mb
	tb       = 1000 * gb
)

func humansize(size int64) string {
	var units string
	switch {
	case size < kb:
		units = "Bytes"
	case size < mb:
		size /= kb
		units = "KB"
	case size < gb:
		size /= mb
		units = "MB"
	case size < tb:
		size /= gb
		units = "GB"
	default:
		size /= tb
		units = "TB"
	}
	return fmt.Sprintf("%d %s", size, units)
}
