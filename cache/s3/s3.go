// Package s3 implements a remote cache tier backed by an S3 bucket.
package s3

import (
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/cache"
)

type Tier struct {
	bucket   string
	prefix   string
	priority int

	svc      *s3.S3
	uploader *s3manager.Uploader
}

var _ cache.Tier = &Tier{}

// Config describes an S3 tier. Region may be empty when the
// environment or shared config provides it.
type Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Priority int
}

func New(cfg Config) (*Tier, error) {
	if cfg.Bucket == "" {
		return nil, depot.ConfigurationError("s3 tier needs a bucket")
	}
	opts := session.Options{SharedConfigState: session.SharedConfigEnable}
	if cfg.Region != "" {
		opts.Config = aws.Config{Region: aws.String(cfg.Region)}
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	return &Tier{
		bucket:   cfg.Bucket,
		prefix:   prefix,
		priority: cfg.Priority,
		svc:      s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (t *Tier) SourceID() string {
	if t.prefix == "" {
		return "s3://" + t.bucket
	}
	return "s3://" + t.bucket + "/" + t.prefix
}

func (t *Tier) Priority() int { return t.priority }

func (t *Tier) object(key string) string {
	if t.prefix == "" {
		return key
	}
	return t.prefix + "/" + key
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode() == 404
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}

func (t *Tier) Has(key string) (bool, error) {
	_, err := t.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.object(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "HEAD %s", t.object(key))
	}
	return true, nil
}

func (t *Tier) Get(key string) (io.ReadCloser, int64, error) {
	out, err := t.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.object(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, depot.NotFoundError("%s not in %s", key, t.SourceID())
		}
		return nil, 0, errors.Wrapf(err, "GET %s", t.object(key))
	}
	size := cache.SizeUnknown
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (t *Tier) Put(key string, r io.Reader) (int64, error) {
	counted := &countingReader{r: r}
	_, err := t.uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.object(key)),
		Body:   counted,
	})
	if err != nil {
		return 0, errors.Wrapf(err, "uploading %s", t.object(key))
	}
	return counted.n, nil
}

func (t *Tier) Remove(key string) error {
	_, err := t.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.object(key)),
	})
	return errors.Wrapf(err, "deleting %s", t.object(key))
}

func (t *Tier) List() ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{Bucket: aws.String(t.bucket)}
	if t.prefix != "" {
		input.Prefix = aws.String(t.prefix + "/")
	}
	err := t.svc.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			k := aws.StringValue(obj.Key)
			if t.prefix != "" {
				k = strings.TrimPrefix(k, t.prefix+"/")
			}
			keys = append(keys, k)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", t.SourceID())
	}
	return keys, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
