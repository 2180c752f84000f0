package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const contentTypeJSON = "application/json"

// ResponseError reports a response rejected by validation. Text holds the
// raw body so callers see the server diagnostic.
type ResponseError struct {
	StatusCode int
	Text       string
}

func (e *ResponseError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Sprintf("core: response status %d", e.StatusCode)
	}
	return e.Text
}

// CheckResponseOK passes 2xx responses through and rejects everything else.
func CheckResponseOK(_ context.Context, response *Response) (*Response, error) {
	if response == nil {
		return nil, &ResponseError{}
	}
	if response.OK() {
		return response, nil
	}
	return nil, &ResponseError{StatusCode: response.StatusCode, Text: response.Text()}
}

// ToCompletion decodes JSON bodies and falls back to the raw text when the
// content is not JSON or does not parse.
func ToCompletion(_ context.Context, response *Response) (any, error) {
	text := response.Text()
	if !strings.HasPrefix(strings.ToLower(response.Header("Content-Type")), contentTypeJSON) {
		return text, nil
	}
	var decoded any
	if err := json.Unmarshal(response.Body, &decoded); err != nil {
		return text, nil
	}
	return decoded, nil
}

// Resolve validates response and converts its body into a completion value.
func Resolve(ctx context.Context, response *Response, validate ResponseValidator, onComplete CompletionFunc) (any, error) {
	if validate == nil {
		validate = CheckResponseOK
	}
	if onComplete == nil {
		onComplete = ToCompletion
	}
	valid, err := validate(ctx, response)
	if err != nil {
		return nil, err
	}
	return onComplete(ctx, valid)
}

// PreserveHeaderValues copies the headers named in meta.PreserveHeaders from
// the response. It returns nil when nothing was requested.
func PreserveHeaderValues(meta Metadata, response *Response) map[string]string {
	if meta.PreserveHeaders == nil {
		return nil
	}
	preserved := make(map[string]string, len(meta.PreserveHeaders))
	for _, name := range meta.PreserveHeaders {
		preserved[name] = response.Header(name)
	}
	return preserved
}

// ResponseHandlerWithMeta binds meta to its response handler, or identity.
func ResponseHandlerWithMeta(meta Metadata) func(value any) (any, error) {
	handler := meta.ResponseHandler
	return func(value any) (any, error) {
		if handler == nil {
			return value, nil
		}
		return handler(value, meta)
	}
}

var _ ResponseResolver = Resolve
