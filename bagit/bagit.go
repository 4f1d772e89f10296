// Package bagit implements enough of the BagIt specification to write and
// read the archives produced by confbag. Bags are serialized as zip files
// which do not use compression. Only MD5 and SHA256 checksums are supported
// for the manifest files.
//
// Specific items not implemented are fetch files and holey bags. It doesn't
// preserve multiple occurrences of tags in the bag-info.txt file.
//
// Output is deterministic. Tags and manifest lines are sorted, every zip
// entry carries the same fixed modification time, and no tag is derived from
// the clock. Writing the same files and tags in the same order twice gives
// byte-identical bags.
//
// Checksums are generated for each file when a bag is created. After that,
// checksums are only calculated when a bag is (explicitly) verified. In
// particular, checksums are not calculated when reading content from a bag.
//
// The interface is designed to mirror the archive/zip interface as much as
// possible.
//
// The BagIt spec can be found at https://tools.ietf.org/html/rfc8493.
package bagit

import (
	"time"
)

// Bag represents a single BagIt file.
type Bag struct {
	// the bag's name, which is the directory this bag unserializes into.
	// includes the trailing slash, e.g. "ex-bag/"
	dirname string

	// for each file in this bag, the checksums we expect for it.
	// payload files begin with "data/". Tag and control files don't.
	manifest map[string]*Checksum

	// list of tags to be saved in the bag-info.txt file. The key is the
	// tag name, and the value is the content to save for that tag.
	// content strings are not wrapped at column 75 in this implementation.
	tags map[string]string
}

// Checksum contains all the checksums we know about for a given file.
// Some entries may be empty. At least one entry should be present.
type Checksum struct {
	MD5    []byte
	SHA256 []byte
}

const (
	// Version is the version of the BagIt specification this package implements.
	Version = "1.0"
)

// ModTime is the modification time stamped on every zip entry. It is
// fixed so bags do not change between runs.
var ModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

func newBag() Bag {
	return Bag{
		manifest: make(map[string]*Checksum),
		tags:     make(map[string]string),
	}
}

func (c *Checksum) set(algorithm string, b []byte) {
	switch algorithm {
	case "md5":
		c.MD5 = b
	case "sha256":
		c.SHA256 = b
	}
}

func (c *Checksum) get(algorithm string) []byte {
	switch algorithm {
	case "md5":
		return c.MD5
	case "sha256":
		return c.SHA256
	}
	return nil
}
