package ckpt

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// Uploader mirrors checkpoint files to an S3 bucket so that runs on
// ephemeral machines keep their state.
type Uploader struct {
	svc    *s3.S3
	bucket string
	prefix string
}

// NewUploader creates the client using the ambient AWS credentials and
// region. The bucket may carry a key prefix, e.g. my-bucket/resnet.
func NewUploader(bucket string) (*Uploader, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	name, prefix := bucket, ""
	if i := strings.IndexByte(bucket, '/'); i >= 0 {
		name, prefix = bucket[:i], bucket[i+1:]
	}
	return &Uploader{svc: s3.New(sess), bucket: name, prefix: prefix}, nil
}

// Upload copies the file to the bucket under its base name.
func (u *Uploader) Upload(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	key := path.Join(u.prefix, path.Base(filePath))
	_, err = u.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return errors.Wrapf(err, "error uploading %s", key)
}
