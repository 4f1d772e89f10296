// Package store provides a simple, goroutine safe key-value interface. Instead
// of values being an opaque array of bytes, though, they are a stream. This
// approach allows large archives to be stored easily.
//
// Keys are slash separated paths, such as "P150/T2000/P150T2000_config_60.zip".
// The FileSystem store maps them onto directories; the object stores use them
// as object names below their prefix.
package store

import (
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store defines the basic stream based key-value store.
// Items are immutable once stored, but they may be deleted and then replaced
// with a new value.
//
// Open() returns a ReadAtCloser instead of a ReadCloser to make it easier to
// wrap it by a zip reader.
type Store interface {
	ROStore
	Create(key string) (io.WriteCloser, error)
	Delete(key string) error
}

// ROStore is the read-only pieces of a Store. It allows one to list contents,
// and to retrieve data.
type ROStore interface {
	List() <-chan string
	ListPrefix(prefix string) ([]string, error)
	Open(key string) (ReadAtCloser, int64, error)
}

var (
	// ErrKeyExists indicates an attempt to create a key which already exists
	ErrKeyExists = errors.New("key already exists")

	// ErrNotExist indicates the key is not in the store
	ErrNotExist = errors.New("key does not exist")

	// ErrInvalidKey means the key is empty, has an empty, "." or ".."
	// path segment, or contains white space, control characters or
	// invalid UTF-8.
	ErrInvalidKey = errors.New("invalid key")

	errAborted = errors.New("write aborted")
)

// Abort discards a writer returned by Create without storing anything, when
// the writer supports it. Otherwise the writer is closed, and the partial
// item, if one was made, is deleted from s. An error from closing the
// writer is returned.
func Abort(s Store, key string, w io.WriteCloser, cause error) error {
	if a, ok := w.(interface{ CloseWithError(error) error }); ok {
		return a.CloseWithError(cause)
	}
	closeErr := w.Close()
	if err := s.Delete(key); err != nil && !errors.Is(err, ErrNotExist) {
		return errors.Join(closeErr, err)
	}
	return closeErr
}

// ValidKey checks that key is usable by every store.
func ValidKey(key string) error {
	if key == "" || !utf8.ValidString(key) {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return ErrInvalidKey
		}
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidKey
		}
	}
	return nil
}

// NewReader converts a ReaderAt into a io.Reader. It is here as a utility to
// help work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// reading less than a full buffer is not an error for
		// an io.Reader
		err = nil
	}
	return
}
