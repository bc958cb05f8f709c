// Package artifacts uploads schema packages and exported documents to the
// migration bucket.
package artifacts

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
)

// Kind selects the bucket prefix an artifact is uploaded under.
type Kind string

const (
	KindSchema Kind = "schema"
	KindData   Kind = "data"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSchema, KindData:
		return k, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q (want schema or data)", s)
}

// Prefix is the bucket key prefix of kind.
func (k Kind) Prefix() string {
	if k == KindSchema {
		return naming.SchemaPrefix
	}
	return naming.DataPrefix
}

// Key is the object key of a file at rel, relative to the uploaded root.
func (k Kind) Key(rel string) string {
	return path.Join(k.Prefix(), filepath.ToSlash(rel))
}

type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Uploader struct {
	api    PutObjectAPI
	bucket string
	log    logrus.FieldLogger
}

func NewUploader(api PutObjectAPI, bucket string, log logrus.FieldLogger) *Uploader {
	return &Uploader{api: api, bucket: bucket, log: log}
}

func (u *Uploader) Bucket() string {
	return u.bucket
}

// Upload puts a single file, or every regular file below a directory, under
// kind's prefix and returns the written keys in order.
func (u *Uploader) Upload(ctx context.Context, kind Kind, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}

	files := map[string]string{}
	if !info.IsDir() {
		files[kind.Key(filepath.Base(root))] = root
	} else {
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			files[kind.Key(rel)] = p
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := u.put(ctx, key, files[key]); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()
	return u.putObject(ctx, key, f, "")
}

// Put writes body to key. An empty contentType leaves the S3 default.
func (u *Uploader) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return u.putObject(ctx, key, bytes.NewReader(body), contentType)
}

func (u *Uploader) putObject(ctx context.Context, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:               aws.String(u.bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := u.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", u.bucket, key, err)
	}
	u.log.WithFields(logrus.Fields{"bucket": u.bucket, "key": key}).Info("Uploaded artifact")
	return nil
}

type HeadObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Unchanged reports whether the object at key already holds body. Objects
// are written in a single part with SSE-S3, so their ETag is the MD5 of the
// content. A missing object is reported as changed.
func Unchanged(ctx context.Context, api HeadObjectAPI, bucket, key string, body []byte) (bool, error) {
	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head s3://%s/%s: %w", bucket, key, err)
	}
	sum := md5.Sum(body)
	return aws.ToString(out.ETag) == `"`+hex.EncodeToString(sum[:])+`"`, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}
