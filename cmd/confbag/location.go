package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/qmchamm/confbag/config"
	"github.com/qmchamm/confbag/store"
)

var errNoStore = errors.New("no store given: use --store or set storage.location")

// splitBucketPrefix will take a path and separate the bucket name from a prefix, if any.
// It will also append "addition" to the prefix, and make sure the prefix returned is
// either empty or ends with a slash "/".
//
// examples:
//
//	"" -> ("", "")
//	"bucket" -> ("bucket", "")
//	"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string, addition string) (bucket, prefix string) {
	location = strings.TrimPrefix(location, "/")
	if location == "" {
		return
	}
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = v[1]
	}
	if addition != "" {
		prefix = path.Join(prefix, addition)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// parselocation will create an appropriate store based on location, using st
// for anything the location leaves out. An empty location falls back to
// st.Location, and then to an S3 store for st.Bucket.
// It understands the schemes "file:", "s3:" and "minio:". A location
// without a scheme is a directory. st.Prefix is added below any prefix in
// the location.
func parselocation(location string, st config.Storage) (store.Store, error) {
	if location == "" {
		location = st.Location
	}
	if location == "" {
		if st.Bucket == "" {
			return nil, errNoStore
		}
		location = "s3:/" + st.Bucket
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("bad store location %q: %w", location, err)
	}
	switch u.Scheme {
	case "", "file":
		dir := u.Path
		if u.Opaque != "" {
			dir = u.Opaque
		}
		if st.Prefix != "" {
			dir = path.Join(dir, st.Prefix)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		return store.NewFileSystem(dir), nil
	case "s3":
		bucket, prefix := splitBucketPrefix(u.Path, st.Prefix)
		if bucket == "" {
			return nil, fmt.Errorf("bad store location %q: no bucket name", location)
		}
		sess, err := session.NewSession(s3Config(u.Host, st))
		if err != nil {
			return nil, err
		}
		return store.NewS3(bucket, prefix, sess), nil
	case "minio":
		bucket, prefix := splitBucketPrefix(u.Path, st.Prefix)
		if bucket == "" {
			return nil, fmt.Errorf("bad store location %q: no bucket name", location)
		}
		endpoint, secure := u.Host, st.UseSSL
		if endpoint == "" {
			endpoint = st.Endpoint
		}
		switch {
		case strings.HasPrefix(endpoint, "https://"):
			secure = true
		case strings.HasPrefix(endpoint, "http://"):
			secure = false
		}
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
		if endpoint == "" {
			return nil, fmt.Errorf("bad store location %q: no endpoint", location)
		}
		timeout, err := st.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		return store.NewMinio(bucket, prefix, store.MinioOptions{
			Endpoint:  endpoint,
			AccessKey: st.AccessKey,
			SecretKey: st.SecretKey,
			Region:    st.Region,
			Secure:    secure,
			Timeout:   timeout,
		})
	}
	return nil, fmt.Errorf("bad store location %q: unknown scheme %q", location, u.Scheme)
}

// s3Config builds the session settings for an S3 store. host, when given,
// replaces the configured endpoint.
func s3Config(host string, st config.Storage) *aws.Config {
	conf := &aws.Config{Region: aws.String(st.Region)}
	endpoint := st.Endpoint
	if host != "" {
		endpoint = host
	}
	if endpoint != "" {
		conf.Endpoint = aws.String(endpoint)
		conf.S3ForcePathStyle = aws.Bool(true)
		// disable SSL for local development
		if strings.Contains(endpoint, "localhost") || strings.HasPrefix(endpoint, "http://") {
			conf.DisableSSL = aws.Bool(true)
		}
	}
	if st.AccessKey != "" {
		conf.Credentials = credentials.NewStaticCredentials(st.AccessKey, st.SecretKey, "")
	}
	return conf
}
