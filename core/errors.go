package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TokenAPIErrorBadInput         = "TOKENAPI_BAD_INPUT"
	TokenAPIErrorBadConfig        = "TOKENAPI_BAD_CONFIG"
	TokenAPIErrorResponseInvalid  = "TOKENAPI_RESPONSE_INVALID"
	TokenAPIErrorCredentialDecode = "TOKENAPI_CREDENTIAL_DECODE"
	TokenAPIErrorRefreshFailed    = "TOKENAPI_REFRESH_FAILED"
	TokenAPIErrorRequestFailed    = "TOKENAPI_REQUEST_FAILED"
	TokenAPIErrorStoreFailed      = "TOKENAPI_STORE_FAILED"
	TokenAPIErrorInternal         = "TOKENAPI_INTERNAL_ERROR"
)

var (
	ErrCredentialDecode      = errors.New("core: credential decode failed")
	ErrRefreshFailed         = errors.New("core: credential refresh failed")
	ErrRequestFailed         = errors.New("core: request failed")
	ErrStoreFailed           = errors.New("core: credential store failed")
	ErrRefreshActionRequired = errors.New("core: refresh action is required when refresh is enabled")
	ErrTransportRequired     = errors.New("core: transport is required")
)

// StageError ties a failure to the pipeline stage it happened in. errors.Is
// matches both the stage sentinel and the cause.
type StageError struct {
	Stage error
	Cause error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return e.Stage.Error()
	}
	return e.Stage.Error() + ": " + e.Cause.Error()
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return e.Stage
	}
	return errors.Join(e.Stage, e.Cause)
}

func stageError(stage error, cause error) error {
	if cause == nil {
		return nil
	}
	var staged *StageError
	if errors.As(cause, &staged) && staged.Stage == stage {
		return cause
	}
	return &StageError{Stage: stage, Cause: cause}
}

// DispatchError is the payload of FAILED events.
type DispatchError struct {
	Kind string
	Err  error
}

func (e *DispatchError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	var responseErr *ResponseError
	switch {
	case errors.Is(err, ErrRefreshFailed):
		return wrapServiceError(err, err.Error(), goerrors.CategoryAuth, TokenAPIErrorRefreshFailed)
	case errors.Is(err, ErrCredentialDecode):
		return wrapServiceError(err, err.Error(), goerrors.CategoryBadInput, TokenAPIErrorCredentialDecode)
	case errors.Is(err, ErrStoreFailed):
		return wrapServiceError(err, err.Error(), goerrors.CategoryExternal, TokenAPIErrorStoreFailed)
	case errors.As(err, &responseErr):
		mapped := wrapServiceError(err, responseErr.Error(), goerrors.CategoryExternal, TokenAPIErrorResponseInvalid)
		if responseErr.StatusCode >= http.StatusBadRequest {
			mapped.Code = responseErr.StatusCode
		}
		return mapped
	case errors.Is(err, ErrRequestFailed):
		return wrapServiceError(err, err.Error(), goerrors.CategoryExternal, TokenAPIErrorRequestFailed)
	case errors.Is(err, ErrRefreshActionRequired), errors.Is(err, ErrTransportRequired):
		return wrapServiceError(err, err.Error(), goerrors.CategoryBadInput, TokenAPIErrorBadConfig)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must be"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, TokenAPIErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func wrapServiceError(source error, message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.Wrap(source, category, message).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TokenAPIErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return TokenAPIErrorRefreshFailed
	case goerrors.CategoryExternal:
		return TokenAPIErrorRequestFailed
	default:
		return TokenAPIErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
