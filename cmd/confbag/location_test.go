package main

import (
	"path/filepath"
	"testing"

	"github.com/qmchamm/confbag/config"
	"github.com/qmchamm/confbag/store"
)

const (
	typeFileSystem = iota
	typeS3
	typeMinio
	typeError
)

func TestSplitBucketPrefix(t *testing.T) {
	var table = []struct {
		location string
		addition string
		bucket   string
		prefix   string
	}{
		{"", "", "", ""},
		{"/", "", "", ""},
		{"rel/path", "", "rel", "path/"},
		{"/abs/path/", "", "abs", "path/"},
		{"/bucket", "", "bucket", ""},
		{"/bucket", "more", "bucket", "more/"},
		{"/bucket/prefix/", "", "bucket", "prefix/"},
		{"/bucket/prefix", "", "bucket", "prefix/"},
		{"/bucket/prefix", "more", "bucket", "prefix/more/"},
		{"/bucket/prefix/", "more/", "bucket", "prefix/more/"},
	}

	for _, row := range table {
		t.Log(row.location, row.addition)
		bucket, prefix := splitBucketPrefix(row.location, row.addition)
		if bucket != row.bucket {
			t.Error("expected bucket", row.bucket, "received", bucket)
		}
		if prefix != row.prefix {
			t.Error("expected prefix", row.prefix, "received", prefix)
		}
	}
}

func TestParseLocation(t *testing.T) {
	dir := t.TempDir()
	st := config.Storage{Region: "us-east-1", Endpoint: "http://localhost:9000"}
	var table = []struct {
		location string
		prefix   string
		typ      int
		bucket   string
		want     string // prefix
	}{
		{"", "", typeError, "", ""},
		{filepath.Join(dir, "rel"), "", typeFileSystem, "", ""},
		{"file:" + filepath.Join(dir, "abs"), "", typeFileSystem, "", ""},
		{"s3:/bucket", "", typeS3, "bucket", ""},
		{"s3:/bucket", "more", typeS3, "bucket", "more/"},
		{"s3://localhost:9000/bucket/prefix/", "", typeS3, "bucket", "prefix/"},
		{"s3://localhost:9000/bucket/prefix/", "more", typeS3, "bucket", "prefix/more/"},
		{"s3://", "", typeError, "", ""},
		{"minio://localhost:9000/bucket/prefix", "", typeMinio, "bucket", "prefix/"},
		{"minio:/bucket", "more", typeMinio, "bucket", "more/"},
		{"ftp://host/bucket", "", typeError, "", ""},
	}

	for _, row := range table {
		t.Log(row.location, row.prefix)
		st.Prefix = row.prefix
		result, err := parselocation(row.location, st)
		if row.typ == typeError {
			if err == nil {
				t.Errorf("%s: expected an error, got %#v", row.location, result)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %s", row.location, err)
			continue
		}
		switch x := result.(type) {
		case *store.FileSystem:
			if row.typ != typeFileSystem {
				t.Errorf("unexpected received %#v", result)
			}
		case *store.S3:
			if row.typ != typeS3 {
				t.Errorf("unexpected received %#v", result)
			}
			if x.Bucket != row.bucket {
				t.Error("expected bucket", row.bucket, "received", x.Bucket)
			}
			if x.Prefix != row.want {
				t.Error("expected prefix", row.want, "received", x.Prefix)
			}
		case *store.Minio:
			if row.typ != typeMinio {
				t.Errorf("unexpected received %#v", result)
			}
			if x.Bucket != row.bucket {
				t.Error("expected bucket", row.bucket, "received", x.Bucket)
			}
			if x.Prefix != row.want {
				t.Error("expected prefix", row.want, "received", x.Prefix)
			}
		default:
			t.Errorf("unexpected store %#v", result)
		}
	}
}

func TestParseLocationFallback(t *testing.T) {
	s, err := parselocation("", config.Storage{Bucket: "phy240060", Prefix: "configurations"})
	if err != nil {
		t.Fatal(err)
	}
	x, ok := s.(*store.S3)
	if !ok || x.Bucket != "phy240060" || x.Prefix != "configurations/" {
		t.Errorf("got %#v", s)
	}
}
