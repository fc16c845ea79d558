package idxstocksummary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/voxrow/voxrow/internal/codec"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

// Unwrap extracts the target page's JSON document from a scraping-proxy
// response of the form {"results": [{"content": ...}]}. The content is used
// as is when it is already an object; when it is text it is parsed as JSON,
// first stripping the HTML page a browser-rendered scrape wraps it in.
func Unwrap(envelope pipeline.Data) (map[string]any, error) {
	root, ok := envelope.(map[string]any)
	if !ok {
		return nil, &pipeline.CodecError{Op: "proxy envelope", Err: fmt.Errorf("expected object, got %T", envelope)}
	}
	results, ok := root["results"].([]any)
	if !ok || len(results) == 0 {
		return nil, &pipeline.CodecError{Op: "proxy envelope", Err: errors.New(`missing "results"`)}
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return nil, &pipeline.CodecError{Op: "proxy envelope", Err: errors.New("first result is not an object")}
	}

	switch content := first["content"].(type) {
	case map[string]any:
		return content, nil
	case string:
		text := strings.TrimSpace(content)
		if strings.HasPrefix(text, "<") {
			var err error
			if text, err = pageText(text); err != nil {
				return nil, &pipeline.CodecError{Op: "proxy content", Err: err}
			}
		}
		parsed, err := codec.LoadsJSON([]byte(text))
		if err != nil {
			return nil, &pipeline.CodecError{Op: "proxy content", Err: err}
		}
		doc, ok := parsed.(map[string]any)
		if !ok {
			return nil, &pipeline.CodecError{Op: "proxy content", Err: fmt.Errorf("expected object, got %T", parsed)}
		}
		return doc, nil
	default:
		return nil, &pipeline.CodecError{Op: "proxy content", Err: fmt.Errorf("unexpected content type %T", content)}
	}
}

// pageText returns the <pre> text of a rendered JSON page, or its body text.
func pageText(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	if pre := doc.Find("pre").First(); pre.Length() > 0 {
		return strings.TrimSpace(pre.Text()), nil
	}
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

// hasData reports whether the document's "data" member is non-empty. A
// document without the member is a CodecError: the upstream shape changed.
func hasData(doc map[string]any) (bool, error) {
	data, ok := doc["data"]
	if !ok {
		return false, &pipeline.CodecError{Op: "stock summary", Err: errors.New(`missing "data"`)}
	}
	switch v := data.(type) {
	case nil:
		return false, nil
	case []any:
		return len(v) > 0, nil
	case map[string]any:
		return len(v) > 0, nil
	case string:
		return v != "", nil
	case bool:
		return v, nil
	case json.Number:
		return v != "0", nil
	case float64:
		return v != 0, nil
	default:
		return true, nil
	}
}
