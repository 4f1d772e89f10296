package store

import (
	"io"
	"strings"
)

// NewWithPrefix wraps the store s by one which prefixes all its keys by
// prefix. A non-empty prefix is treated as a directory, so "runs" and
// "runs/" both place keys under "runs/". This is how a single bucket is
// shared between several catalogs.
func NewWithPrefix(s Store, prefix string) Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if prefix == "" {
		return s
	}
	return prefixstore{s: s, p: prefix}
}

type prefixstore struct {
	s Store  // the store being wrapped
	p string // the prefix for our keys, ending in a slash
}

func (ps prefixstore) List() <-chan string {
	out := make(chan string)
	in := ps.s.List()
	go func() {
		defer close(out)
		for key := range in {
			if rest, ok := strings.CutPrefix(key, ps.p); ok {
				out <- rest
			}
		}
	}()
	return out
}

func (ps prefixstore) ListPrefix(prefix string) ([]string, error) {
	var result []string
	keys, err := ps.s.ListPrefix(ps.p + prefix)
	for _, key := range keys {
		if rest, ok := strings.CutPrefix(key, ps.p); ok {
			result = append(result, rest)
		}
	}
	return result, err
}

func (ps prefixstore) Open(key string) (ReadAtCloser, int64, error) {
	if err := ValidKey(key); err != nil {
		return nil, 0, err
	}
	return ps.s.Open(ps.p + key)
}

func (ps prefixstore) Create(key string) (io.WriteCloser, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	return ps.s.Create(ps.p + key)
}

func (ps prefixstore) Delete(key string) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	return ps.s.Delete(ps.p + key)
}
