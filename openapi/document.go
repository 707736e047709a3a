package openapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoDocument indicates that no OpenAPI document could be obtained.
	// Callers should continue with an empty toolset.
	ErrNoDocument = errors.New("no OpenAPI document available")

	// ErrMalformedDocument indicates that the document is not a JSON object.
	ErrMalformedDocument = errors.New("malformed OpenAPI document")
)

// Document is a decoded OpenAPI document. Numbers are kept as json.Number so
// that re-encoding does not alter them.
type Document map[string]any

// ParseDocument decodes a JSON-encoded OpenAPI document.
func ParseDocument(data []byte) (Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedDocument)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrMalformedDocument)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return doc, nil
}

// Version returns the value of the top-level "openapi" field, or "" if absent.
func (d Document) Version() string {
	v, _ := d["openapi"].(string)
	return v
}

// Title returns info.title, or "" if absent.
func (d Document) Title() string {
	info, _ := d["info"].(map[string]any)
	title, _ := info["title"].(string)
	return title
}

// JSON encodes the document.
func (d Document) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(d))
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(deepCopy(map[string]any(d)).(map[string]any))
}

// Servers returns the server URLs in document order, skipping malformed
// entries.
func (d Document) Servers() []string {
	list, _ := d["servers"].([]any)
	urls := make([]string, 0, len(list))
	for _, entry := range list {
		server, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if u, ok := server["url"].(string); ok {
			urls = append(urls, u)
		}
	}
	return urls
}

// Operation returns the operation object at paths[path][method].
func (d Document) Operation(path, method string) (map[string]any, bool) {
	paths, ok := d["paths"].(map[string]any)
	if !ok {
		return nil, false
	}
	item, ok := paths[path].(map[string]any)
	if !ok {
		return nil, false
	}
	op, ok := item[method].(map[string]any)
	return op, ok
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
