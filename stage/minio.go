package stage

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/teranos/civicload/errors"
)

const hashMetaKey = "Civicload-Sha256"

// MinioConfig locates an S3-compatible bucket
type MinioConfig struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// MinioStage stages objects in an S3-compatible bucket
type MinioStage struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioStage builds a client for cfg. It does not contact the endpoint.
func NewMinioStage(cfg MinioConfig) (*MinioStage, error) {
	if cfg.Endpoint == "" {
		return nil, errors.NewInvalidRequestError("stage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.NewInvalidRequestError("stage bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("stage credentials are required"),
			"set CIVICLOAD_STAGE_ACCESS_KEY_ID and CIVICLOAD_STAGE_SECRET_ACCESS_KEY",
		)
	}

	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}
	return &MinioStage{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (s *MinioStage) Describe() string { return "s3://" + s.bucket }

// EnsureBucket creates the bucket if it does not exist
func (s *MinioStage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}
	return errors.Wrapf(s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}),
		"create bucket %s", s.bucket)
}

// Put streams the gzip-compressed file into the bucket unless the stored
// object carries the same hash
func (s *MinioStage) Put(ctx context.Context, key, localPath string) (Object, error) {
	hash, size, err := HashFile(localPath)
	if err != nil {
		return Object{}, err
	}
	obj := Object{Key: key, Size: size, Hash: hash}
	name := key + objectSuffix

	if info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err == nil {
		if storedHash(info.UserMetadata) == hash {
			return obj, nil
		}
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return obj, errors.Wrapf(err, "stat %s", name)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(compressTo(pw, localPath))
	}()

	_, err = s.client.PutObject(ctx, s.bucket, name, pr, -1, minio.PutObjectOptions{
		ContentType:  "application/gzip",
		UserMetadata: map[string]string{hashMetaKey: hash},
	})
	pr.Close()
	if err != nil {
		return obj, errors.Wrapf(err, "upload %s", name)
	}

	obj.Uploaded = true
	return obj, nil
}

// Open returns the decompressed object
func (s *MinioStage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name := key + objectSuffix
	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.NewNotFoundError("staged object %s", key)
		}
		return nil, errors.Wrapf(err, "stat %s", name)
	}
	o, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", name)
	}
	return decompress(o)
}

// List returns object keys under prefix
func (s *MinioStage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for o := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if o.Err != nil {
			return nil, errors.Wrapf(o.Err, "list %s", prefix)
		}
		if strings.HasSuffix(o.Key, objectSuffix) {
			keys = append(keys, strings.TrimSuffix(o.Key, objectSuffix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// storedHash finds the hash metadata; servers differ in how they case and
// prefix user metadata keys
func storedHash(meta map[string]string) string {
	for k, v := range meta {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == strings.ToLower(hashMetaKey) {
			return v
		}
	}
	return ""
}
