package store

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	raven "github.com/getsentry/raven-go"
)

// FileSystem implements the simple file system based store. Keys are paths
// relative to the root, so "P150/T2000/x.zip" is kept in the file
// <root>/P150/T2000/x.zip. If you want the files to have a specific file
// extension, you need to add it to your key.
type FileSystem struct {
	root string
}

const (
	// the subdir to store files while they are being written to.
	scratchdir = ".scratch"
)

var (
	// make sure it implements the Store interface
	_ Store = &FileSystem{}
)

// NewFileSystem creates a new FileSystem store based at the given root path.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root}
}

// List returns a channel listing all the keys in this store.
func (s *FileSystem) List() <-chan string {
	c := make(chan string)
	go func() {
		defer close(c)
		keys, err := s.ListPrefix("")
		if err != nil {
			// we have no other way of passing this error back
			log.Println("FileSystem List:", s.root, err)
			raven.CaptureError(err, map[string]string{"Root": s.root})
		}
		for _, k := range keys {
			c <- k
		}
	}()
	return c
}

// ListPrefix returns a sorted list of all the keys beginning with the given
// prefix. The prefix is a plain string prefix, it does not need to end at a
// path separator. A prefix with a "." or ".." directory segment gives
// ErrInvalidKey.
func (s *FileSystem) ListPrefix(prefix string) ([]string, error) {
	var result []string
	// only walk the part of the tree that can match
	start := s.root
	if i := strings.LastIndex(prefix, "/"); i != -1 {
		// no key has a "." or ".." segment, and they would leave the root
		for _, segment := range strings.Split(prefix[:i], "/") {
			if segment == "." || segment == ".." {
				return nil, ErrInvalidKey
			}
		}
		start = filepath.Join(s.root, filepath.FromSlash(prefix[:i]))
	}
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == start {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == scratchdir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			result = append(result, key)
		}
		return nil
	})
	sort.Strings(result)
	return result, err
}

// Open returns a reader for the given object along with its size.
func (s *FileSystem) Open(key string) (ReadAtCloser, int64, error) {
	if err := ValidKey(key); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotExist
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Create creates a new item with the given key, and a writer to allow for
// saving data into the new item. The data is written to a scratch file and
// only moved into place when the writer is closed, so a reader never sees
// a partial item.
func (s *FileSystem) Create(key string) (io.WriteCloser, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	target := s.path(key)
	if _, err := os.Stat(target); !errors.Is(err, fs.ErrNotExist) {
		return nil, ErrKeyExists
	}
	if err := os.MkdirAll(filepath.Dir(target), 0775); err != nil {
		return nil, err
	}
	scratch := filepath.Join(s.root, scratchdir)
	if err := os.MkdirAll(scratch, 0775); err != nil {
		return nil, err
	}
	w, err := os.CreateTemp(scratch, filepath.Base(target)+".*")
	if err != nil {
		return nil, err
	}
	return &moveCloser{File: w, target: target}, nil
}

func (s *FileSystem) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// track the file so when it is closed, we can move it into the correct place
type moveCloser struct {
	*os.File
	target string
}

func (w *moveCloser) Close() error {
	err := w.File.Close()
	if err == nil {
		_, err = os.Stat(w.target)
		if !errors.Is(err, fs.ErrNotExist) {
			err = ErrKeyExists
		} else {
			err = os.Rename(w.Name(), w.target)
		}
	}
	if err != nil {
		os.Remove(w.Name())
	}
	return err
}

// Delete the given key from the store. It is not an error if the key doesn't
// exist. Directories left empty are not removed.
func (s *FileSystem) Delete(key string) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	// don't report a missing file as an error
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	return err
}

// CloseWithError discards the scratch file without moving it into place.
func (w *moveCloser) CloseWithError(err error) error {
	w.File.Close()
	return os.Remove(w.Name())
}
