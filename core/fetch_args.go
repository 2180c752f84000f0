package core

import (
	"net/http"
	"strings"
)

const (
	DefaultAuthScheme   = "JWT"
	authorizationHeader = "Authorization"
)

func DefaultHeaders() map[string]string {
	return map[string]string{"Content-Type": contentTypeJSON}
}

// AuthorizationAttacher returns an attacher that sets
// "Authorization: <scheme> <credential>" unless the headers already declare
// an Authorization value.
func AuthorizationAttacher(scheme string) CredentialAttacher {
	scheme = strings.TrimSpace(scheme)
	if scheme == "" {
		scheme = DefaultAuthScheme
	}
	return func(headers map[string]string, body []byte, credential string) (map[string]string, []byte) {
		out := make(map[string]string, len(headers)+1)
		for key, value := range headers {
			out[key] = value
		}
		if !hasHeader(out, authorizationHeader) {
			out[authorizationHeader] = scheme + " " + credential
		}
		return out, body
	}
}

// BuildFetchArgs turns a request description and credential into transport
// arguments. Absent fields stay absent in the resulting options.
func BuildFetchArgs(
	desc RequestDescription,
	credential string,
	authenticate bool,
	defaultHeaders map[string]string,
	attach CredentialAttacher,
	preprocess RequestPreprocessor,
) FetchArgs {
	method := strings.TrimSpace(desc.Method)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string, len(defaultHeaders)+len(desc.Headers))
	for key, value := range defaultHeaders {
		headers[key] = value
	}
	for key, value := range desc.Headers {
		headers[key] = value
	}
	endpoint := desc.Endpoint
	body := desc.Body

	if credential != "" && authenticate {
		if attach == nil {
			attach = AuthorizationAttacher(DefaultAuthScheme)
		}
		headers, body = attach(headers, body, credential)
	}
	if preprocess != nil {
		headers, endpoint, body = preprocess(headers, endpoint, body)
	}
	if len(headers) == 0 {
		headers = nil
	}

	return FetchArgs{
		Endpoint: endpoint,
		Options: FetchOptions{
			Method:      method,
			Headers:     headers,
			Body:        body,
			Credentials: desc.Credentials,
		},
	}
}

func hasHeader(headers map[string]string, name string) bool {
	for key := range headers {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}
