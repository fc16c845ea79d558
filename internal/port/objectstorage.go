package port

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/voxrow/voxrow/internal/codec"
	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

// ObjectStore is the subset of the S3 API the port needs. *s3.Client
// satisfies it.
type ObjectStore interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ ObjectStore = (*s3.Client)(nil)

// ObjectStorage reads and writes objects in an S3-compatible store,
// applying the codec policy on both sides.
type ObjectStorage struct {
	store ObjectStore
}

func NewObjectStorage(store ObjectStore) *ObjectStorage {
	return &ObjectStorage{store: store}
}

// Extract fetches an object. JSON-typed objects are parsed, anything else
// is returned as text. Gzip-encoded objects are decompressed first.
func (o *ObjectStorage) Extract(ctx context.Context, source pipeline.Source) (pipeline.Data, error) {
	src, ok := source.(pipeline.ObjectStorageSource)
	if !ok {
		return nil, fmt.Errorf("object storage port cannot extract %T: %w", source, pipeline.ErrContract)
	}
	target := src.Bucket + "/" + src.Key
	start := time.Now()

	out, err := o.store.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	})
	if err != nil {
		return nil, &pipeline.TransportError{Op: "s3 get", Target: target, Err: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &pipeline.TransportError{Op: "s3 get", Target: target, Err: err}
	}
	ctxlog.FromContext(ctx).Debug("Object read.",
		"bucket", src.Bucket, "key", src.Key, "bytes", len(body), "duration", time.Since(start))

	data, err := codec.Decode(body, aws.ToString(out.ContentType), aws.ToString(out.ContentEncoding))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", target, err)
	}
	return data, nil
}

// Load encodes data per the destination's content type and encoding, writes
// it, and returns the object key.
func (o *ObjectStorage) Load(ctx context.Context, data pipeline.Data, destination pipeline.Destination) (pipeline.ResourceLocation, error) {
	dst, ok := destination.(pipeline.ObjectStorageDestination)
	if !ok {
		return "", fmt.Errorf("object storage port cannot load to %T: %w", destination, pipeline.ErrContract)
	}
	target := dst.Bucket + "/" + dst.Key

	body, err := codec.Encode(data, dst.ContentType, dst.ContentEncoding)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", target, err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(dst.Bucket),
		Key:           aws.String(dst.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if dst.ContentType != "" {
		in.ContentType = aws.String(string(dst.ContentType))
	}
	if dst.ContentEncoding != "" {
		in.ContentEncoding = aws.String(string(dst.ContentEncoding))
	}

	start := time.Now()
	if _, err := o.store.PutObject(ctx, in); err != nil {
		return "", &pipeline.TransportError{Op: "s3 put", Target: target, Err: err}
	}
	ctxlog.FromContext(ctx).Info("Object written.",
		"bucket", dst.Bucket, "key", dst.Key, "bytes", len(body),
		"content_type", dst.ContentType, "content_encoding", dst.ContentEncoding,
		"duration", time.Since(start))
	return pipeline.ResourceLocation(dst.Key), nil
}
