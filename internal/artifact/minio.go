package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures NewMinioStore.
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioAPI is the subset of the MinIO client used by MinioStore.
type MinioAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FetchObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// minioClient adapts *minio.Client to MinioAPI.
type minioClient struct {
	*minio.Client
}

// FetchObject reads a whole object. The minio client defers the request until
// the first read, so a missing key surfaces from ReadAll.
func (c minioClient) FetchObject(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := c.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// MinioStore keeps artifacts as objects on a MinIO server.
type MinioStore struct {
	client MinioAPI
	bucket string
	prefix string
}

// NewMinioStore connects to the server and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("minio artifact store requires an endpoint and a bucket")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return NewMinioStoreWithClient(ctx, minioClient{client}, opts.Bucket, opts.Prefix)
}

// NewMinioStoreWithClient wraps an existing client, creating the bucket when
// it does not exist yet.
func NewMinioStoreWithClient(ctx context.Context, client MinioAPI, bucket, prefix string) (*MinioStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *MinioStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Put uploads data as a single object.
func (s *MinioStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("uploading artifact %s to minio bucket %s: %w", name, s.bucket, err)
	}
	return nil
}

// Get downloads the object for name.
func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := s.client.FetchObject(ctx, s.bucket, s.key(name))
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("downloading artifact %s from minio bucket %s: %w", name, s.bucket, err)
	}
	return data, nil
}
