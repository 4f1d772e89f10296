package archive

import (
	"errors"
	"io"
	"os"

	"github.com/qmchamm/confbag/store"
)

// Upload copies the local archive at localPath into s under key. If key is
// already present, store.ErrKeyExists is returned unless overwrite is set,
// in which case the old item is deleted first. Store failures are returned
// as a *RemoteError. The local file is never changed.
func Upload(s store.Store, localPath, key string, overwrite bool) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &IOError{Op: "open", Path: localPath, Err: err}
	}
	defer f.Close()

	w, err := s.Create(key)
	if errors.Is(err, store.ErrKeyExists) && overwrite {
		if err = s.Delete(key); err != nil {
			return &RemoteError{Op: "delete", Key: key, Err: err}
		}
		w, err = s.Create(key)
	}
	if err != nil {
		return &RemoteError{Op: "create", Key: key, Err: err}
	}
	if _, err := io.Copy(w, f); err != nil {
		store.Abort(s, key, w, err)
		return &RemoteError{Op: "upload", Key: key, Err: err}
	}
	if err := w.Close(); err != nil {
		return &RemoteError{Op: "upload", Key: key, Err: err}
	}
	return nil
}

// OpenKey opens the archive stored in s under key. The returned closer
// releases the underlying store reader.
func OpenKey(s store.ROStore, key string) (*Reader, io.Closer, error) {
	rac, size, err := s.Open(key)
	if err != nil {
		return nil, nil, &RemoteError{Op: "open", Key: key, Err: err}
	}
	r, err := Open(rac, size)
	if err != nil {
		rac.Close()
		return nil, nil, &RemoteError{Op: "read", Key: key, Err: err}
	}
	return r, rac, nil
}
