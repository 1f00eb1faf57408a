package s3

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is an in-memory test double for API.
type MockS3Client struct {
	mu           sync.RWMutex
	objects      map[string][]byte
	contentTypes map[string]string

	// Call counters for test assertions
	PutObjectCalls int
	GetObjectCalls int

	// GetObjectFail makes GetObject fail for keys containing the substring.
	GetObjectFail string

	// PageSize limits ListObjectsV2 pages. Zero returns everything at once.
	PageSize int
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// ContentType returns the content type an object was uploaded with.
func (m *MockS3Client) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contentTypes[key]
}

// Object returns a stored object by full key.
func (m *MockS3Client) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// PutObject implements API.PutObject for testing.
func (m *MockS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutObjectCalls++
	if aws.ToString(params.IfNoneMatch) == "*" {
		if _, exists := m.objects[key]; exists {
			return nil, &smithyAPIError{code: "PreconditionFailed", message: "object already exists"}
		}
	}
	m.objects[key] = data
	m.contentTypes[key] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.GetObjectCalls++
	data, exists := m.objects[key]
	fail := m.GetObjectFail
	m.mu.Unlock()

	if fail != "" && strings.Contains(key, fail) {
		return nil, &smithyAPIError{code: "InternalError", message: "simulated get failure"}
	}
	if !exists {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.RLock()
	data, exists := m.objects[key]
	m.mu.RUnlock()

	if !exists {
		return nil, &smithyAPIError{code: "NotFound", message: "not found"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

// DeleteObject implements API.DeleteObject for testing.
func (m *MockS3Client) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, aws.ToString(params.Key))
	delete(m.contentTypes, aws.ToString(params.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 implements API.ListObjectsV2 for testing. Keys are
// returned in lexical order; continuation tokens are the last key of the
// previous page.
func (m *MockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	after := aws.ToString(params.ContinuationToken)

	m.mu.RLock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) && key > after {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	truncated := false
	if m.PageSize > 0 && len(keys) > m.PageSize {
		keys = keys[:m.PageSize]
		truncated = true
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	if truncated {
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	return out, nil
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string { return e.message }

func (e *smithyAPIError) ErrorCode() string { return e.code }

func (e *smithyAPIError) ErrorMessage() string { return e.message }

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }
