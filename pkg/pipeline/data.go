package pipeline

import (
	"iter"
	"net/http"
	"time"
)

// Data is an opaque payload moved between stages: a structured value
// (scalar, map, slice, struct) or a lazy Rows sequence.
type Data = any

// Row is a single record of a Rows payload.
type Row = map[string]any

// Rows is a lazy sequence of rows. Producers that can be ranged more than
// once make the payload restartable.
type Rows = iter.Seq[Row]

// ResourceLocation identifies what a successful load wrote: a storage key
// or a filesystem path. It can be fed back into a Source to re-extract.
type ResourceLocation string

// ContentType tags a stored object with its serialization format.
type ContentType string

const (
	ContentTypeHTML ContentType = "text/html"
	ContentTypeJSON ContentType = "application/json"
	ContentTypeSVG  ContentType = "image/svg+xml"
	ContentTypeXML  ContentType = "application/xml"
)

// ContentEncoding tags a stored object with its compression. The zero value
// means uncompressed.
type ContentEncoding string

const ContentEncodingGzip ContentEncoding = "gzip"

// Method is the HTTP verb of an HTTPSource.
type Method string

const (
	MethodGet  Method = http.MethodGet
	MethodPost Method = http.MethodPost
)

// Source is a domain value describing where data comes from. The set of
// variants is closed: HTTPSource, ObjectStorageSource and FileSource.
type Source interface {
	isSource()
}

// Destination is a domain value describing where data goes. The set of
// variants is closed: ObjectStorageDestination and FileDestination.
type Destination interface {
	isDestination()
}

// HTTPSource is a remote JSON endpoint. Body is sent as JSON for POST only.
// A zero Timeout means no per-request timeout.
type HTTPSource struct {
	URL     string
	Method  Method
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// ObjectStorageSource is an object in an S3-compatible bucket.
type ObjectStorageSource struct {
	Bucket string
	Key    string
}

// FileSource is a local file. No pipeline extracts from it yet.
type FileSource struct {
	Path string
}

// ObjectStorageDestination is an object to write, with the metadata that
// decides how the payload is encoded before the write.
type ObjectStorageDestination struct {
	ObjectStorageSource
	ContentType     ContentType
	ContentEncoding ContentEncoding
}

// FileDestination is a local file written as JSON text.
type FileDestination struct {
	Path string
}

func (HTTPSource) isSource()          {}
func (ObjectStorageSource) isSource() {}
func (FileSource) isSource()          {}

func (ObjectStorageDestination) isDestination() {}
func (FileDestination) isDestination()          {}

// Transform reshapes the resolved source values into the value to load. It
// must be pure: no I/O, no side effects.
type Transform func(in ...Data) (Data, error)

// describe renders a source or destination for logs and journals.
func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case HTTPSource:
		return string(t.Method) + " " + redactURL(t.URL)
	case ObjectStorageSource:
		return t.Bucket + "/" + t.Key
	case ObjectStorageDestination:
		return t.Bucket + "/" + t.Key
	case FileSource:
		return t.Path
	case FileDestination:
		return t.Path
	default:
		return "unknown"
	}
}

// Describe returns a log-safe rendering of a Source or Destination. URLs are
// reduced to scheme and host since paths may embed API keys.
func Describe(v any) string { return describe(v) }
