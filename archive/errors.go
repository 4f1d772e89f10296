package archive

import (
	"fmt"
)

// IOError reports a local file failure while building an archive. Op is
// what was being done, such as "read" or "create".
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("archive: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// RemoteError reports a store failure for Key. The local archive, if any,
// is left in place.
type RemoteError struct {
	Op  string
	Key string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("archive: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
