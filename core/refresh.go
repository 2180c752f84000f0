package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RequestNewCredential performs the refresh exchange described by args and
// returns the handled resolved value. Failures are returned unchanged.
func RequestNewCredential(
	ctx context.Context,
	args FetchArgs,
	refreshMeta Metadata,
	validate ResponseValidator,
	fetch Transport,
	resolve ResponseResolver,
	buildHandler HandlerBuilder,
) (any, error) {
	if fetch == nil {
		return nil, ErrTransportRequired
	}
	if resolve == nil {
		resolve = Resolve
	}
	if buildHandler == nil {
		buildHandler = ResponseHandlerWithMeta
	}
	handler := buildHandler(refreshMeta)
	response, err := fetch.Do(ctx, args.Endpoint, args.Options)
	if err != nil {
		return nil, err
	}
	resolved, err := resolve(ctx, response, validate, nil)
	if err != nil {
		return nil, err
	}
	return handler(resolved)
}

// ExtractCredential reads a credential from a refresh result: a string, or
// the token / access_token field of a decoded JSON object.
func ExtractCredential(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		if token := strings.TrimSpace(typed); token != "" {
			return token, nil
		}
	case []byte:
		if token := strings.TrimSpace(string(typed)); token != "" {
			return token, nil
		}
	case map[string]any:
		for _, key := range []string{"token", "access_token"} {
			if token, ok := typed[key].(string); ok && strings.TrimSpace(token) != "" {
				return strings.TrimSpace(token), nil
			}
		}
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(typed, &decoded); err != nil {
			return "", fmt.Errorf("core: decode refresh result: %w", err)
		}
		return ExtractCredential(decoded)
	}
	return "", errors.New("core: refresh result does not contain a credential")
}
