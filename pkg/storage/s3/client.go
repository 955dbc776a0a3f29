package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Client wraps the private inspection-photo bucket. Objects are never public;
// reads go through short-lived presigned URLs.
type Client struct {
	s3Client     *awss3.Client
	presigner    *awss3.PresignClient
	bucket       string
	urlExpiry    time.Duration
	maxPhotoSize int64
	maxPhotos    int
}

// New builds the storage client from AWS + storage configuration. A custom
// endpoint switches the client to path-style addressing (minio, localstack).
func New(ctx context.Context, awsCfg config.AWSConfig, storageCfg config.StorageConfig) (*Client, error) {
	if strings.TrimSpace(storageCfg.InspectionBucket) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inspection bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.AccessKeyID != "" && awsCfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load aws config")
	}

	s3Client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if awsCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	urlExpiry := storageCfg.SignedURLExpiry
	if urlExpiry <= 0 {
		urlExpiry = 15 * time.Minute
	}

	return &Client{
		s3Client:     s3Client,
		presigner:    awss3.NewPresignClient(s3Client),
		bucket:       storageCfg.InspectionBucket,
		urlExpiry:    urlExpiry,
		maxPhotoSize: storageCfg.MaxPhotoSizeBytes,
		maxPhotos:    storageCfg.MaxPhotoCount,
	}, nil
}

// MaxPhotoCount reports how many inspection photos one return may carry.
func (c *Client) MaxPhotoCount() int {
	if c == nil {
		return 0
	}
	return c.maxPhotos
}

// ValidatePhoto rejects unsupported content types and oversized uploads
// before any bytes reach the bucket.
func (c *Client) ValidatePhoto(contentType string, size int64) error {
	if _, ok := allowedPhotoTypes[contentType]; !ok {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unsupported photo content type %q", contentType))
	}
	if c.maxPhotoSize > 0 && size > c.maxPhotoSize {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("photo exceeds maximum size of %d bytes", c.maxPhotoSize))
	}
	return nil
}

// UploadInspectionPhoto stores one photo under the order's return prefix and
// returns the object key.
func (c *Client) UploadInspectionPhoto(ctx context.Context, orderID string, body io.Reader, contentType string, size int64) (string, error) {
	if err := c.ValidatePhoto(contentType, size); err != nil {
		return "", err
	}
	key := fmt.Sprintf("returns/%s/%s%s", orderID, uuid.NewString(), allowedPhotoTypes[contentType])

	_, err := c.s3Client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload inspection photo")
	}
	return key, nil
}

// PresignGet returns a short-lived read URL for a stored object key.
func (c *Client) PresignGet(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "object key is required")
	}
	req, err := c.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(c.urlExpiry))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "presign inspection photo")
	}
	return req.URL, nil
}

// DeletePrefix removes every object under the order's return prefix. Used by
// the retention/erasure process.
func (c *Client) DeletePrefix(ctx context.Context, orderID string) error {
	prefix := fmt.Sprintf("returns/%s/", orderID)
	list, err := c.s3Client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inspection photos")
	}
	for _, obj := range list.Contents {
		if _, err := c.s3Client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    obj.Key,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete inspection photo")
		}
	}
	return nil
}
