// Package catalog lists the archives kept in a store and describes them,
// either as a table or as an intake style YAML catalog.
package catalog

import (
	"log"
	"strings"
	"sync"

	"github.com/qmchamm/confbag/archive"
	"github.com/qmchamm/confbag/meta"
	"github.com/qmchamm/confbag/store"
	"github.com/qmchamm/confbag/util"
)

// Entry describes one archive found in a store.
type Entry struct {
	Key        string         // store key
	URI        string         // where readers of the catalog fetch it from
	Size       int64          // archive size in bytes
	Attributes map[string]any // as returned by archive.Reader.Attributes
	Datasets   []string       // entry names, sorted
}

// Meta returns the entry's attributes as metadata. Attributes that do not
// fit their field are left out.
func (e Entry) Meta() meta.Meta {
	m, _ := meta.FromAttributes(e.Attributes)
	return m
}

type scanOptions struct {
	ext     string
	workers int
	verbose bool
}

// A ScanOption changes how Scan works.
type ScanOption func(*scanOptions)

// WithExt only scans keys ending in "."+ext. The default is
// archive.DefaultExt.
func WithExt(ext string) ScanOption {
	return func(o *scanOptions) { o.ext = strings.TrimPrefix(ext, ".") }
}

// WithWorkers reads up to n archives at once.
func WithWorkers(n int) ScanOption {
	return func(o *scanOptions) { o.workers = n }
}

// WithLogging logs each key as it is read.
func WithLogging() ScanOption {
	return func(o *scanOptions) { o.verbose = true }
}

// Scan reads every archive in s whose key begins with prefix. Each entry's
// URI is uriBase and the key joined by a slash, or just the key when
// uriBase is empty. Archives that cannot be read are reported in the
// returned errors, one *archive.RemoteError per key, and are left out of
// the entries. Entries are in key order.
func Scan(s store.ROStore, prefix, uriBase string, opts ...ScanOption) ([]Entry, []error) {
	o := scanOptions{ext: archive.DefaultExt, workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	keys, err := s.ListPrefix(prefix)
	if err != nil {
		return nil, []error{&archive.RemoteError{Op: "list", Key: prefix, Err: err}}
	}
	var selected []string
	for _, key := range keys {
		if strings.HasSuffix(key, "."+o.ext) {
			selected = append(selected, key)
		}
	}

	results := make([]Entry, len(selected))
	errs := make([]error, len(selected))
	gate := util.NewGate(o.workers)
	var wg sync.WaitGroup
	for i, key := range selected {
		gate.Enter()
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			defer gate.Leave()
			if o.verbose {
				log.Println("scan", key)
			}
			results[i], errs[i] = readEntry(s, key)
		}(i, key)
	}
	wg.Wait()

	var entries []Entry
	var failures []error
	for i := range selected {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		results[i].URI = joinURI(uriBase, results[i].Key)
		entries = append(entries, results[i])
	}
	return entries, failures
}

func readEntry(s store.ROStore, key string) (Entry, error) {
	rac, size, err := s.Open(key)
	if err != nil {
		return Entry{}, &archive.RemoteError{Op: "open", Key: key, Err: err}
	}
	defer rac.Close()
	r, err := archive.Open(rac, size)
	if err != nil {
		return Entry{}, &archive.RemoteError{Op: "read", Key: key, Err: err}
	}
	attrs, err := r.Attributes()
	if err != nil {
		return Entry{}, &archive.RemoteError{Op: "read", Key: key, Err: err}
	}
	return Entry{
		Key:        key,
		Size:       size,
		Attributes: attrs,
		Datasets:   r.Entries(),
	}, nil
}

func joinURI(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimSuffix(base, "/") + "/" + key
}

// Filter selects entries by their thermodynamic attributes. Nil fields
// match everything.
type Filter struct {
	Pressure    *int
	Temperature *int
	State       *meta.State
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	m := e.Meta()
	if f.Pressure != nil && (m.Pressure == nil || *m.Pressure != *f.Pressure) {
		return false
	}
	if f.Temperature != nil && (m.Temperature == nil || *m.Temperature != *f.Temperature) {
		return false
	}
	if f.State != nil && (m.State == nil || *m.State != *f.State) {
		return false
	}
	return true
}

// Apply returns the entries that pass the filter, keeping their order.
func (f Filter) Apply(entries []Entry) []Entry {
	var result []Entry
	for _, e := range entries {
		if f.Match(e) {
			result = append(result, e)
		}
	}
	return result
}
