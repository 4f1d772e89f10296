//go:build s3

package store

// Runs the shared store checks against a live S3 compatible service, such as
// a local minio server.
//
// To run from the command line
//
//	env AWS_ACCESS_KEY_ID=XXXXX AWS_SECRET_ACCESS_KEY=YYYY go test -tags=s3 -run Live

import (
	"os"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/uuid"
)

const liveEndpoint = "localhost:9000"

func getSession() *session.Session {
	s3Config := &aws.Config{
		Endpoint:         aws.String("http://" + liveEndpoint),
		Region:           aws.String("us-east-1"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	}
	return session.Must(session.NewSession(s3Config))
}

func TestLiveS3(t *testing.T) {
	checkStore(t, NewS3("confbag", "test-"+uuid.NewString()+"/", getSession()))
}

func TestLiveMinio(t *testing.T) {
	s, err := NewMinio("confbag", "test-"+uuid.NewString()+"/", MinioOptions{
		Endpoint:  liveEndpoint,
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	checkStore(t, s)
}
