package store

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	raven "github.com/getsentry/raven-go"
)

// A S3 store keeps its items as objects in an S3 compatible bucket.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc      s3iface.S3API
	uploader *s3manager.Uploader
	Bucket   string
	Prefix   string
}

var _ Store = &S3{}

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. For example if prefix were "archives/" then an
// Open("P150/T2000/x.zip") would look for the object
// "archives/P150/T2000/x.zip" in the bucket. The authorization method,
// endpoint and credentials in the session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	svc := s3.New(awsSession)
	return &S3{
		Bucket:   bucket,
		Prefix:   prefix,
		svc:      svc,
		uploader: s3manager.NewUploaderWithClient(svc),
	}
}

// List returns a channel of all the keys in this store. It will only return
// ones that satisfy the store's Prefix, so it is safe to use this on a bucket
// containing other items.
func (s *S3) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		err := s.listPages("", func(key string) { out <- key })
		if err != nil {
			log.Println("S3 List:", s.Prefix, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix})
		}
	}()
	return out
}

// ListPrefix returns the keys in this store that have the given prefix.
// The argument prefix is added to the store's Prefix. S3 lists keys in
// lexical order, so the result is sorted.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	err := s.listPages(prefix, func(key string) { result = append(result, key) })
	if err != nil {
		log.Println("S3 ListPrefix:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

func (s *S3) listPages(prefix string, emit func(string)) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	return s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				key := strings.TrimPrefix(aws.StringValue(item.Key), s.Prefix)
				// skip "directory" placeholder objects
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				emit(key)
			}
			return true
		})
}

// Open will return a ReadAtCloser to get the content for the given key. Data
// is paged in from S3 as needed and a few pages are kept in memory.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	if err := ValidKey(key); err != nil {
		return nil, 0, err
	}
	size, err := s.stat(key)
	if err != nil {
		return nil, 0, err
	}
	result := &s3ReadAtCloser{
		svc:    s.svc,
		bucket: s.Bucket,
		key:    s.Prefix + key,
		size:   size,
	}
	return result, size, nil
}

// Create will return a WriteCloser to upload content to the given key. The
// data is streamed to the bucket by an s3manager.Uploader, which switches to
// a multipart upload for large items. The object only appears once Close
// returns without error.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	_, err := s.stat(key)
	if err == nil {
		return nil, ErrKeyExists
	} else if err != ErrNotExist {
		return nil, err
	}
	pr, pw := io.Pipe()
	wc := &s3WriteCloser{pw: pw, key: s.Prefix + key}
	wc.wg.Add(1)
	go func() {
		defer wc.wg.Done()
		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(wc.key),
			Body:   pr,
		})
		if err != nil {
			log.Println("S3 upload:", wc.key, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Key": wc.key})
		}
		wc.err = err
		// unblock any writer still sending data
		pr.CloseWithError(err)
	}()
	return wc, nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	}
	return err
}

// stat returns the size of the given key, or ErrNotExist. The prefix is
// added to the key before checking.
func (s *S3) stat(key string) (int64, error) {
	info, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, ErrNotExist
		}
		return 0, err
	}
	return aws.Int64Value(info.ContentLength), nil
}

func isNotFound(err error) bool {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() == http.StatusNotFound {
		return true
	}
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// s3ReadAtCloser adapts ranged GETs to the ReadAt interface. Pages are
// aligned to multiples of s3PageSize, so cached pages never overlap, and the
// most recently used page is kept at the front of the cache.
//
// It is not safe to use this from more than one goroutine.
type s3ReadAtCloser struct {
	svc    s3iface.S3API
	bucket string
	key    string
	size   int64
	pages  []s3Page
}

type s3Page struct {
	data   []byte
	offset int64
}

const (
	s3PageSize = 4 * 1024 * 1024
	s3NumPages = 4
)

// ReadAt implements the io.ReaderAt interface.
func (rac *s3ReadAtCloser) ReadAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("s3: negative offset %d", offset)
	}
	n := 0
	for n < len(p) && offset < rac.size {
		page, err := rac.page(offset)
		if err != nil {
			return n, err
		}
		m := copy(p[n:], page.data[offset-page.offset:])
		if m == 0 {
			// short page from the server
			return n, io.ErrUnexpectedEOF
		}
		n += m
		offset += int64(m)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// page returns the cached page containing offset, loading it if needed.
func (rac *s3ReadAtCloser) page(offset int64) (s3Page, error) {
	for i, pg := range rac.pages {
		if pg.offset <= offset && offset < pg.offset+int64(len(pg.data)) {
			copy(rac.pages[1:i+1], rac.pages[:i])
			rac.pages[0] = pg
			return pg, nil
		}
	}
	pg, err := rac.load(offset - offset%s3PageSize)
	if err != nil {
		return s3Page{}, err
	}
	if len(rac.pages) < s3NumPages {
		rac.pages = append(rac.pages, s3Page{})
	}
	copy(rac.pages[1:], rac.pages[:len(rac.pages)-1])
	rac.pages[0] = pg
	return pg, nil
}

func (rac *s3ReadAtCloser) load(start int64) (s3Page, error) {
	output, err := rac.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rac.bucket),
		Key:    aws.String(rac.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, start+s3PageSize-1)),
	})
	if err != nil {
		log.Println("S3 load:", rac.key, start, err)
		var rf awserr.RequestFailure
		if errors.As(err, &rf) && rf.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
			err = io.EOF
		}
		return s3Page{}, err
	}
	defer output.Body.Close()
	data, err := io.ReadAll(output.Body)
	if err != nil {
		return s3Page{}, err
	}
	return s3Page{data: data, offset: start}, nil
}

// Close releases the cached pages.
func (rac *s3ReadAtCloser) Close() error {
	rac.pages = nil
	return nil
}

// s3WriteCloser feeds a pipe read by the uploader goroutine started in Create.
type s3WriteCloser struct {
	pw  *io.PipeWriter
	key string
	wg  sync.WaitGroup
	err error // set by the uploader before wg is done
}

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	return wc.pw.Write(p)
}

// Close ends the data stream and waits for the upload to finish. Any upload
// error is returned here.
func (wc *s3WriteCloser) Close() error {
	wc.pw.Close()
	wc.wg.Wait()
	return wc.err
}

// CloseWithError abandons the upload. Nothing is stored under the key.
func (wc *s3WriteCloser) CloseWithError(err error) error {
	if err == nil {
		err = errAborted
	}
	wc.pw.CloseWithError(err)
	wc.wg.Wait()
	return nil
}
