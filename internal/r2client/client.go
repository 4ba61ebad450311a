// Package r2client wraps the S3 SDK for Cloudflare R2: plain object transfer
// plus conditional writes, which back the ingestion lock.
package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/uuid"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("r2client: object not found")

// Config holds R2 client configuration.
type Config struct {
	Endpoint    string // e.g. https://<account>.r2.cloudflarestorage.com
	AccessKeyID string
	SecretKey   string
	BucketName  string
}

// AccountEndpoint returns the R2 S3 endpoint for a Cloudflare account id.
func AccountEndpoint(accountID string) string {
	return "https://" + accountID + ".r2.cloudflarestorage.com"
}

// Client provides R2 object storage operations.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a new R2 client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretKey == "" || cfg.BucketName == "" {
		return nil, errors.New("r2client: all config fields are required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2client: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // R2 has no virtual-host buckets on custom endpoints
		// R2 rejects the SDK's default trailing checksums on some operations.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Client{
		s3:     s3Client,
		bucket: cfg.BucketName,
	}, nil
}

// Upload stores an object and returns its ETag.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := c.s3.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("r2client: upload %q: %w", key, err)
	}
	return trimETag(result.ETag), nil
}

// Download returns the object body and ETag. Caller must close the body.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("r2client: download %q: %w", key, err)
	}
	return result.Body, trimETag(result.ETag), nil
}

// HeadObject returns the ETag of an object without downloading it.
func (c *Client) HeadObject(ctx context.Context, key string) (string, error) {
	result, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("r2client: head %q: %w", key, err)
	}
	return trimETag(result.ETag), nil
}

// PutObjectIfNotExists creates an object only if the key is free
// (If-None-Match: *). created is false when the key already exists.
func (c *Client) PutObjectIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (created bool, etag string, err error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		IfNoneMatch: aws.String("*"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := c.s3.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("r2client: put if not exists %q: %w", key, err)
	}
	return true, trimETag(result.ETag), nil
}

// PutObjectIfMatch replaces an object only while its ETag still matches.
func (c *Client) PutObjectIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (updated bool, newETag string, err error) {
	input := &s3.PutObjectInput{
		Bucket:  aws.String(c.bucket),
		Key:     aws.String(key),
		Body:    body,
		IfMatch: aws.String("\"" + etag + "\""),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := c.s3.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("r2client: put if match %q: %w", key, err)
	}
	return true, trimETag(result.ETag), nil
}

// DeleteObject deletes an object.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("r2client: delete %q: %w", key, err)
	}
	return nil
}

func trimETag(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, "\"")
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusPreconditionFailed {
		return true
	}
	return strings.Contains(err.Error(), "PreconditionFailed")
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// LockInfo is the JSON body of a lock object.
type LockInfo struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DistributedLock is a TTL lock on one object key, built on conditional
// writes. An expired lock may be taken over by another owner.
type DistributedLock struct {
	client  *Client
	key     string
	ttl     time.Duration
	ownerID string
	etag    string // ETag of the lock object while held
}

// NewDistributedLock creates a lock handle with a fresh owner id.
func NewDistributedLock(client *Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client:  client,
		key:     key,
		ttl:     ttl,
		ownerID: uuid.New().String(),
	}
}

// Acquire takes the lock. It returns false without error when another owner
// holds an unexpired lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	data, err := l.lockBody()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	created, etag, err := l.client.PutObjectIfNotExists(ctx, l.key, bytes.NewReader(data), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.etag = etag
		return true, nil
	}

	expired, oldETag, err := l.checkExpired(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock: check expired: %w", err)
	}
	if !expired {
		return false, nil
	}

	// Take over; a concurrent taker changes the ETag and one of us loses.
	stolen, newETag, err := l.client.PutObjectIfMatch(ctx, l.key, bytes.NewReader(data), oldETag, "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: steal: %w", err)
	}
	if stolen {
		l.etag = newETag
	}
	return stolen, nil
}

// Renew extends the TTL. It returns false when the lock was lost.
func (l *DistributedLock) Renew(ctx context.Context) (bool, error) {
	if l.etag == "" {
		return false, nil
	}
	data, err := l.lockBody()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}

	updated, newETag, err := l.client.PutObjectIfMatch(ctx, l.key, bytes.NewReader(data), l.etag, "application/json")
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	if !updated {
		return false, nil
	}
	l.etag = newETag
	return true, nil
}

func (l *DistributedLock) lockBody() ([]byte, error) {
	return json.Marshal(LockInfo{Owner: l.ownerID, ExpiresAt: time.Now().Add(l.ttl)})
}

// checkExpired reads the current lock. A missing or unreadable lock counts
// as expired.
func (l *DistributedLock) checkExpired(ctx context.Context) (bool, string, error) {
	body, etag, err := l.client.Download(ctx, l.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, "", nil
		}
		return false, "", err
	}
	defer func() { _ = body.Close() }()

	info, err := decodeLockInfo(body)
	if err != nil {
		return true, etag, nil
	}
	return time.Now().After(info.ExpiresAt), etag, nil
}

// Release deletes the lock if this handle still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	body, _, err := l.client.Download(ctx, l.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("release lock: verify: %w", err)
	}
	info, err := decodeLockInfo(body)
	_ = body.Close()
	if err == nil && info.Owner != l.ownerID {
		return nil
	}
	l.etag = ""
	return l.client.DeleteObject(ctx, l.key)
}

// OwnerID returns the unique identifier of this lock instance.
func (l *DistributedLock) OwnerID() string {
	return l.ownerID
}

func decodeLockInfo(r io.Reader) (LockInfo, error) {
	var info LockInfo
	if err := json.NewDecoder(r).Decode(&info); err != nil {
		return LockInfo{}, fmt.Errorf("decode lock: %w", err)
	}
	return info, nil
}
