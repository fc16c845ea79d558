package codec

import (
	"fmt"
	"strings"

	"github.com/voxrow/voxrow/pkg/pipeline"
)

// Encode renders data as the body of an object tagged with contentType and
// contentEncoding. JSON-typed payloads are serialized; other payloads must
// already be text or bytes, anything else is written in its fmt.Sprint form.
func Encode(data pipeline.Data, contentType pipeline.ContentType, contentEncoding pipeline.ContentEncoding) ([]byte, error) {
	var body []byte
	switch {
	case isJSON(string(contentType)):
		b, err := DumpsJSON(data)
		if err != nil {
			return nil, err
		}
		body = b
	default:
		switch t := data.(type) {
		case []byte:
			body = t
		case string:
			body = []byte(t)
		default:
			body = []byte(fmt.Sprint(data))
		}
	}

	switch contentEncoding {
	case "":
		return body, nil
	case pipeline.ContentEncodingGzip:
		return CompressGzip(body)
	default:
		return nil, &pipeline.CodecError{Op: "encode", Err: fmt.Errorf("unsupported content encoding %q", contentEncoding)}
	}
}

// Decode reverses Encode given the metadata stored with the object. Gzip is
// detected from contentEncoding or, failing that, from the magic number.
func Decode(body []byte, contentType, contentEncoding string) (pipeline.Data, error) {
	if strings.EqualFold(contentEncoding, string(pipeline.ContentEncodingGzip)) || IsGzip(body) {
		b, err := DecompressGzip(body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	text, err := DecodeText(body)
	if err != nil {
		return nil, err
	}
	if isJSON(contentType) {
		return LoadsJSON([]byte(text))
	}
	return text, nil
}

// isJSON accepts parameters such as "application/json; charset=utf-8".
func isJSON(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), string(pipeline.ContentTypeJSON))
}
