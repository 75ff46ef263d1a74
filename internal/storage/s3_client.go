package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	upload_errors "chunkstore/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PresignTTL time.Duration
}

// Client implements ObjectStore against S3-compatible backends. Compose uses
// a multipart upload with UploadPartCopy, so no chunk bytes pass through the
// coordinator when assembling the final object.
type Client struct {
	cfg     S3Config
	s3      *s3.Client
	presign *s3.PresignClient
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})
	presignClient := s3.NewPresignClient(s3Client)

	return &Client{
		cfg:     cfg,
		s3:      s3Client,
		presign: presignClient,
	}, nil
}

func (c *Client) Put(ctx context.Context, path string, data []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return upload_errors.NewRetryableStorageError("put", path, err)
	}
	return nil
}

func (c *Client) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, upload_errors.NewStorageError("open", path, err)
		}
		return nil, upload_errors.NewRetryableStorageError("open", path, err)
	}
	return out.Body, nil
}

func (c *Client) Compose(ctx context.Context, sources []string, target string) error {
	create, err := c.s3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(target),
	})
	if err != nil {
		return upload_errors.NewRetryableStorageError("compose", target, err)
	}

	abort := func() {
		_, _ = c.s3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(c.cfg.Bucket),
			Key:      aws.String(target),
			UploadId: create.UploadId,
		})
	}

	parts := make([]types.CompletedPart, 0, len(sources))
	for i, src := range sources {
		partNumber := int32(i + 1)
		copied, err := c.s3.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:     aws.String(c.cfg.Bucket),
			Key:        aws.String(target),
			UploadId:   create.UploadId,
			PartNumber: aws.Int32(partNumber),
			CopySource: aws.String(c.cfg.Bucket + "/" + url.PathEscape(src)),
		})
		if err != nil {
			abort()
			return upload_errors.NewRetryableStorageError("compose", src, err)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       copied.CopyPartResult.ETag,
			PartNumber: aws.Int32(partNumber),
		})
	}

	_, err = c.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.cfg.Bucket),
		Key:      aws.String(target),
		UploadId: create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		abort()
		return upload_errors.NewRetryableStorageError("compose", target, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return upload_errors.NewRetryableStorageError("delete", path, err)
	}
	return nil
}

func (c *Client) AccessURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.cfg.PresignTTL
	}
	presigned, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(path),
	}, func(po *s3.PresignOptions) {
		if ttl > 0 {
			po.Expires = ttl
		}
	})
	if err != nil {
		return "", upload_errors.NewRetryableStorageError("presign-get", path, err)
	}
	return presigned.URL, nil
}

func (c *Client) PresignPut(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.cfg.PresignTTL
	}
	presigned, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(path),
	}, func(po *s3.PresignOptions) {
		if ttl > 0 {
			po.Expires = ttl
		}
	})
	if err != nil {
		return "", upload_errors.NewRetryableStorageError("presign-put", path, err)
	}
	return presigned.URL, nil
}
