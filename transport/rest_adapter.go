package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tokenapi/core"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter performs fetch calls over net/http. Relative endpoints are
// resolved against BaseURL. The fetch credentials mode has no net/http
// equivalent and is reported in the response metadata only.
type RESTAdapter struct {
	Client               HTTPDoer
	BaseURL              string
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, endpoint string, opts core.FetchOptions) (*core.Response, error) {
	if a == nil || a.Client == nil {
		return nil, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := a.resolveURL(endpoint)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "endpoint": strings.TrimSpace(endpoint)},
		)
	}
	if target == "" {
		return nil, transportError(
			"transport: request url is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST},
		)
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "method": method, "url": target},
		)
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range opts.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now().UTC()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "method": method, "url": target},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(a.MaxResponseBodyBytes)
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": httpRes.StatusCode},
		)
	}
	if int64(len(payload)) > maxBodyBytes {
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"adapter":          KindREST,
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}

	metadata := map[string]any{
		"duration_ms": time.Since(startedAt).Milliseconds(),
		"kind":        KindREST,
	}
	if opts.Credentials != "" {
		metadata["credentials_mode"] = opts.Credentials
	}
	return &core.Response{
		StatusCode: httpRes.StatusCode,
		Headers:    httpRes.Header.Clone(),
		Body:       payload,
		Metadata:   metadata,
	}, nil
}

func (a *RESTAdapter) resolveURL(endpoint string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", err
	}
	base := strings.TrimSpace(a.BaseURL)
	if parsed.IsAbs() || base == "" {
		return parsed.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(parsed).String(), nil
}

func resolveResponseBodyLimit(adapterLimit int64) int64 {
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ core.Transport = (*RESTAdapter)(nil)
