package syncer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"

	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
)

// ErrBadPayload means a queued payload cannot be turned into a request.
// The entry stays queued like any other failed attempt.
var ErrBadPayload = errors.New("payload cannot be sent")

// RequestBuilder turns a queued entry into the request that replays it.
type RequestBuilder func(entry queue.Entry) (*fetch.Request, error)

// BodyBuilder renders the body of an endpoint request. An empty content type
// sends no Content-Type header.
type BodyBuilder func(entry queue.Entry) (body []byte, contentType string, err error)

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Endpoint sends entries to a fixed path on origin. The path may reference
// {id} and top-level payload fields, e.g. /api/bills/{billId}/collect.
func Endpoint(origin, method, pathTemplate string, body BodyBuilder) RequestBuilder {
	return func(entry queue.Entry) (*fetch.Request, error) {
		path, err := expandPath(pathTemplate, entry)
		if err != nil {
			return nil, err
		}
		req, err := fetch.NewRequest(method, strings.TrimRight(origin, "/")+path)
		if err != nil {
			return nil, err
		}
		if body != nil {
			b, contentType, err := body(entry)
			if err != nil {
				return nil, err
			}
			req.Body = b
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
		}
		return req, nil
	}
}

func expandPath(tmpl string, entry queue.Entry) (string, error) {
	var fields map[string]any
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if name == "id" {
			return url.PathEscape(entry.ID)
		}
		if fields == nil {
			if err := decodeFields(entry.Payload, &fields); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return m
			}
		}
		v, ok := scalar(fields[name])
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: missing path field %q", ErrBadPayload, name)
			}
			return m
		}
		return url.PathEscape(v)
	})
	return out, firstErr
}

func decodeFields(payload json.RawMessage, dst *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if *dst == nil {
		*dst = map[string]any{}
	}
	return nil
}

func scalar(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

// JSONPayload sends the whole payload as the JSON body.
func JSONPayload() BodyBuilder {
	return func(entry queue.Entry) ([]byte, string, error) {
		if len(entry.Payload) == 0 {
			return []byte("{}"), "application/json", nil
		}
		return append([]byte(nil), entry.Payload...), "application/json", nil
	}
}

// JSONField sends one top-level payload field as the JSON body; a missing
// field sends {}.
func JSONField(name string) BodyBuilder {
	return func(entry queue.Entry) ([]byte, string, error) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry.Payload, &fields); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return []byte("{}"), "application/json", nil
		}
		return append([]byte(nil), raw...), "application/json", nil
	}
}

// JSONEntry sends the payload object with the entry id merged in.
func JSONEntry() BodyBuilder {
	return func(entry queue.Entry) ([]byte, string, error) {
		fields := map[string]json.RawMessage{}
		if len(entry.Payload) > 0 {
			if err := json.Unmarshal(entry.Payload, &fields); err != nil {
				return nil, "", fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
		}
		id, _ := json.Marshal(entry.ID)
		fields["id"] = id
		b, err := json.Marshal(fields)
		if err != nil {
			return nil, "", err
		}
		return b, "application/json", nil
	}
}

// NoBody sends the request without a body but still declares JSON.
func NoBody() BodyBuilder {
	return func(queue.Entry) ([]byte, string, error) {
		return nil, "application/json", nil
	}
}

// FilePart is how a file travels inside a queued payload.
type FilePart struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"` // base64 in JSON
}

// MultipartForm sends a multipart form: fileField carries payload[fileKey]
// as a FilePart and every name in textFields carries the payload field of the
// same name (missing fields are sent empty).
func MultipartForm(fileField, fileKey string, textFields ...string) BodyBuilder {
	return func(entry queue.Entry) ([]byte, string, error) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry.Payload, &fields); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBadPayload, err)
		}

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		if raw, ok := fields[fileKey]; ok {
			var file FilePart
			if err := json.Unmarshal(raw, &file); err != nil {
				return nil, "", fmt.Errorf("%w: file: %v", ErrBadPayload, err)
			}
			name := file.Name
			if name == "" {
				name = "blob"
			}
			ct := file.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, name))
			h.Set("Content-Type", ct)
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(file.Data); err != nil {
				return nil, "", err
			}
		}

		for _, name := range textFields {
			var value string
			if raw, ok := fields[name]; ok {
				if err := json.Unmarshal(raw, &value); err != nil {
					var n json.Number
					if err := json.Unmarshal(raw, &n); err != nil {
						return nil, "", fmt.Errorf("%w: field %s: %v", ErrBadPayload, name, err)
					}
					value = n.String()
				}
			}
			if err := w.WriteField(name, value); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	}
}

// storedRequest is a full request captured while offline.
type storedRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

// StoredRequest replays a request recorded in the payload as
// {url, method, headers, body}. Relative URLs resolve against origin.
func StoredRequest(origin string) RequestBuilder {
	return func(entry queue.Entry) (*fetch.Request, error) {
		var sr storedRequest
		if err := json.Unmarshal(entry.Payload, &sr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if sr.URL == "" {
			return nil, fmt.Errorf("%w: stored request has no url", ErrBadPayload)
		}
		base, err := url.Parse(origin)
		if err != nil {
			return nil, err
		}
		ref, err := url.Parse(sr.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		method := sr.Method
		if method == "" {
			method = http.MethodGet
		}
		req, err := fetch.NewRequest(method, base.ResolveReference(ref).String())
		if err != nil {
			return nil, err
		}
		for k, v := range sr.Headers {
			req.Header.Set(k, v)
		}
		if sr.Body != nil {
			req.Body = []byte(*sr.Body)
		}
		return req, nil
	}
}

// EncodeFile renders a file for the payload of a multipart category.
func EncodeFile(name, contentType string, data []byte) json.RawMessage {
	b, _ := json.Marshal(map[string]string{
		"name":        name,
		"contentType": contentType,
		"data":        base64.StdEncoding.EncodeToString(data),
	})
	return b
}
