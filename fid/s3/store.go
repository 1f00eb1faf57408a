// Package s3 provides an S3-compatible fid.Store for remote dataset
// archives.
//
// The store works with AWS S3, MinIO, LocalStack, Cloudflare R2 and other
// S3-compatible object stores. Dataset directories are mirrored as
// slash-separated keys under an optional prefix, for example
// "<prefix>/lab/exp1/header.xml".
//
// # Consistency
//
// AWS S3 provides strong read-after-write consistency. Other backends may
// differ; the index fetches a dataset only after listing it, so a stale
// list shows up as a missing object and a RemoteTransferError.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nmrfx/fidio/fid"
)

// API defines the subset of the S3 client interface used by the store.
// This enables testing with mock implementations.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations.
	// A trailing slash is added if missing.
	Prefix string
}

// Store implements fid.Store and fid.Replacer on an S3-compatible backend.
type Store struct {
	client     API
	bucket     string
	prefix     string
	createTemp func() (*os.File, error)
}

var (
	_ fid.Store    = (*Store)(nil)
	_ fid.Replacer = (*Store)(nil)
)

// New creates a store with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and
// endpoint; see NewClient.
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     prefix,
		createTemp: func() (*os.File, error) { return os.CreateTemp("", "fidio-s3-*") },
	}, nil
}

// Put uploads r to key. Returns fid.ErrPathExists if the key exists.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	return s.put(ctx, key, r, true)
}

// Replace uploads r to key, overwriting any existing object.
func (s *Store) Replace(ctx context.Context, key string, r io.Reader) error {
	return s.put(ctx, key, r, false)
}

func (s *Store) put(ctx context.Context, key string, r io.Reader, noOverwrite bool) error {
	fullKey, err := s.objectKey(key)
	if err != nil {
		return err
	}

	body, size, release, err := s.sizedBody(r)
	if err != nil {
		return err
	}
	defer release()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fullKey),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(key)),
	}
	if noOverwrite {
		in.IfNoneMatch = aws.String("*")
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		if code := errorCode(err); code == "PreconditionFailed" || code == "412" {
			return fid.ErrPathExists
		}
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

// sizedBody returns r as a seekable body of known length. Streams of
// unknown length are spooled to a temp file first.
func (s *Store) sizedBody(r io.Reader) (io.ReadSeeker, int64, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		cur, err := rs.Seek(0, io.SeekCurrent)
		if err == nil {
			end, err := rs.Seek(0, io.SeekEnd)
			if err == nil {
				if _, err := rs.Seek(cur, io.SeekStart); err == nil {
					return rs, end - cur, func() {}, nil
				}
			}
		}
	}

	spool, err := s.createTemp()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("s3: create spool file: %w", err)
	}
	release := func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}
	size, err := io.Copy(spool, r)
	if err == nil {
		_, err = spool.Seek(0, io.SeekStart)
	}
	if err != nil {
		release()
		return nil, 0, nil, fmt.Errorf("s3: spool upload: %w", err)
	}
	return spool, size, release, nil
}

// contentType labels archive objects by their compression suffix.
func contentType(key string) string {
	comp, _ := fid.CompressorFor(key)
	switch comp.Name() {
	case "zstd":
		return "application/zstd"
	case "gzip":
		return "application/gzip"
	case "lz4":
		return "application/x-lz4"
	}
	switch path.Ext(key) {
	case ".xml":
		return "application/xml"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Get retrieves key. Returns fid.ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fid.ErrNotFound
		}
		return nil, fmt.Errorf("s3: get %s: %w", key, err)
	}
	return out.Body, nil
}

// Exists checks whether key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	fullKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3: head %s: %w", key, err)
	}
}

// List returns the keys under prefix, relative to the store prefix and
// in lexical order. Lock companions and staging objects are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	p, err := fid.CleanPrefix(prefix)
	if err != nil {
		return nil, err
	}

	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + p),
	})
	var keys []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if key == "" || fid.IsScratch(path.Base(key)) {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	fullKey, err := s.objectKey(key)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}); err != nil && !isNotFound(err) {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) objectKey(key string) (string, error) {
	cleaned, err := fid.CleanKey(key)
	if err != nil {
		return "", err
	}
	return s.prefix + cleaned, nil
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsk) || errors.As(err, &nsb) {
		return true
	}
	switch errorCode(err) {
	case "NotFound", "NoSuchKey", "404":
		return true
	}
	return false
}
