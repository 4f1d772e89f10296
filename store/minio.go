package store

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio is a store kept in a bucket of an S3 compatible server, accessed
// through the minio client. It behaves like the S3 store; which one is used
// depends only on the location given on the command line.
type Minio struct {
	api     *minio.Client
	Bucket  string
	Prefix  string
	timeout time.Duration
}

var _ Store = &Minio{}

// MinioOptions holds the connection settings for NewMinio.
type MinioOptions struct {
	Endpoint  string // host[:port], without a scheme
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
	Timeout   time.Duration // limit on each call; 0 means none
}

// NewMinio connects to the server given in opt. Keys are stored below
// prefix in bucket.
func NewMinio(bucket, prefix string, opt MinioOptions) (*Minio, error) {
	client, err := minio.New(opt.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.AccessKey, opt.SecretKey, ""),
		Secure: opt.Secure,
		Region: opt.Region,
	})
	if err != nil {
		return nil, err
	}
	return &Minio{api: client, Bucket: bucket, Prefix: prefix, timeout: opt.Timeout}, nil
}

func (s *Minio) context() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

// List returns a channel listing every key below the store's prefix.
func (s *Minio) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		err := s.list("", func(key string) { out <- key })
		if err != nil {
			log.Println("Minio List:", s.Prefix, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix})
		}
	}()
	return out
}

// ListPrefix returns the sorted keys beginning with prefix.
func (s *Minio) ListPrefix(prefix string) ([]string, error) {
	var result []string
	err := s.list(prefix, func(key string) { result = append(result, key) })
	if err != nil {
		log.Println("Minio ListPrefix:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

func (s *Minio) list(prefix string, emit func(string)) error {
	ctx, cancel := s.context()
	defer cancel()
	opts := minio.ListObjectsOptions{
		Prefix:    s.Prefix + prefix,
		Recursive: true,
	}
	for obj := range s.api.ListObjects(ctx, s.Bucket, opts) {
		if obj.Err != nil {
			return obj.Err
		}
		key := strings.TrimPrefix(obj.Key, s.Prefix)
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		emit(key)
	}
	return nil
}

// Open returns a reader for key. The returned object fetches ranges from
// the server as it is read.
func (s *Minio) Open(key string) (ReadAtCloser, int64, error) {
	if err := ValidKey(key); err != nil {
		return nil, 0, err
	}
	ctx, cancel := s.context()
	info, err := s.api.StatObject(ctx, s.Bucket, s.Prefix+key, minio.StatObjectOptions{})
	if err != nil {
		cancel()
		return nil, 0, minioError(err)
	}
	obj, err := s.api.GetObject(ctx, s.Bucket, s.Prefix+key, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		return nil, 0, minioError(err)
	}
	return &minioReader{Object: obj, cancel: cancel}, info.Size, nil
}

// Create streams the written data to the server. The object appears when
// Close returns without error.
func (s *Minio) Create(key string) (io.WriteCloser, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	ctx, cancel := s.context()
	_, err := s.api.StatObject(ctx, s.Bucket, s.Prefix+key, minio.StatObjectOptions{})
	if err == nil {
		cancel()
		return nil, ErrKeyExists
	} else if err = minioError(err); err != ErrNotExist {
		cancel()
		return nil, err
	}
	pr, pw := io.Pipe()
	wc := &minioWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		defer cancel()
		// size -1 makes the client use a streaming multipart upload
		_, err := s.api.PutObject(ctx, s.Bucket, s.Prefix+key, pr, -1,
			minio.PutObjectOptions{ContentType: "application/zip"})
		if err != nil {
			log.Println("Minio upload:", s.Prefix+key, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Key": s.Prefix + key})
		}
		pr.CloseWithError(err)
		wc.done <- err
	}()
	return wc, nil
}

// Delete removes key. A missing key is not an error.
func (s *Minio) Delete(key string) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()
	err := s.api.RemoveObject(ctx, s.Bucket, s.Prefix+key, minio.RemoveObjectOptions{})
	if err != nil {
		log.Println("Minio Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	}
	return err
}

// minioError maps a missing object onto ErrNotExist.
func minioError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotExist
	}
	return err
}

// minioReader releases the call's context when closed.
type minioReader struct {
	*minio.Object
	cancel context.CancelFunc
}

func (r *minioReader) Close() error {
	defer r.cancel()
	return r.Object.Close()
}

type minioWriter struct {
	pw   *io.PipeWriter
	done chan error
	once sync.Once
	err  error
}

func (w *minioWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *minioWriter) Close() error {
	w.once.Do(func() {
		w.pw.Close()
		w.err = <-w.done
	})
	return w.err
}

// CloseWithError abandons the upload. Nothing is stored under the key.
func (w *minioWriter) CloseWithError(err error) error {
	if err == nil {
		err = errAborted
	}
	w.once.Do(func() {
		w.pw.CloseWithError(err)
		<-w.done
	})
	return nil
}
