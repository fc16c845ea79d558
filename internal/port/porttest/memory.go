// Package porttest provides an in-memory object store for tests.
package porttest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object is a stored body with its metadata.
type Object struct {
	Body            []byte
	ContentType     string
	ContentEncoding string
}

// MemoryStore implements port.ObjectStore over a map keyed by "bucket/key".
type MemoryStore struct {
	mu      sync.Mutex
	Objects map[string]Object
	Puts    []string
	Err     error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Objects: map[string]Object{}}
}

func (m *MemoryStore) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	obj, ok := m.Objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	out := &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.Body))}
	if obj.ContentType != "" {
		out.ContentType = aws.String(obj.ContentType)
	}
	if obj.ContentEncoding != "" {
		out.ContentEncoding = aws.String(obj.ContentEncoding)
	}
	return out, nil
}

func (m *MemoryStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.Objects[k] = Object{
		Body:            body,
		ContentType:     aws.ToString(in.ContentType),
		ContentEncoding: aws.ToString(in.ContentEncoding),
	}
	m.Puts = append(m.Puts, k)
	return &s3.PutObjectOutput{}, nil
}

// Get returns the object stored under bucket/key.
func (m *MemoryStore) Get(bucket, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.Objects[bucket+"/"+key]
	return obj, ok
}
