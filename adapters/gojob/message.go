package gojob

import (
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-tokenapi/core"
)

const (
	paramKind            = "kind"
	paramBatch           = "batch"
	paramItems           = "items"
	paramAuthenticate    = "authenticate"
	paramPreserveHeaders = "preserve_headers"
	paramOptimisticID    = "optimistic_id"
	paramValues          = "values"
)

// ToExecutionMessage encodes action as go-job parameters. Values must stay
// serializable by the queue backend.
func ToExecutionMessage(action core.Action, idempotencyKey string) (*job.ExecutionMessage, error) {
	kind := strings.TrimSpace(action.Kind)
	if kind == "" {
		return nil, fmt.Errorf("gojob: action kind is required")
	}
	items := make([]any, 0, action.Payload.Len())
	for _, desc := range action.Payload.Items() {
		items = append(items, encodeRequest(desc))
	}
	params := map[string]any{
		paramKind:  kind,
		paramBatch: action.Payload.IsBatch(),
		paramItems: items,
	}
	if action.Meta.Authenticate != nil {
		params[paramAuthenticate] = *action.Meta.Authenticate
	}
	if len(action.Meta.PreserveHeaders) > 0 {
		headers := make([]any, 0, len(action.Meta.PreserveHeaders))
		for _, header := range action.Meta.PreserveHeaders {
			headers = append(headers, header)
		}
		params[paramPreserveHeaders] = headers
	}
	if action.Meta.OptimisticID != "" {
		params[paramOptimisticID] = action.Meta.OptimisticID
	}
	if len(action.Meta.Values) > 0 {
		values := make(map[string]any, len(action.Meta.Values))
		for key, value := range action.Meta.Values {
			values[key] = value
		}
		params[paramValues] = values
	}

	msg := &job.ExecutionMessage{
		JobID:          JobIDDispatch,
		ScriptPath:     ScriptPathDispatch,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
	if msg.IdempotencyKey != "" {
		msg.DedupPolicy = job.DeduplicationPolicy("drop")
	}
	return msg, nil
}

// FromExecutionMessage decodes an action encoded by ToExecutionMessage. It
// accepts parameters that went through a JSON round trip.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.Action, error) {
	if msg == nil {
		return core.Action{}, fmt.Errorf("gojob: execution message is required")
	}
	if jobID := strings.TrimSpace(msg.JobID); jobID != JobIDDispatch {
		return core.Action{}, fmt.Errorf("gojob: unexpected job id %q", jobID)
	}
	params := msg.Parameters
	kind, _ := params[paramKind].(string)
	if strings.TrimSpace(kind) == "" {
		return core.Action{}, fmt.Errorf("gojob: action kind is missing")
	}

	rawItems, ok := params[paramItems].([]any)
	if !ok {
		if typed, typedOK := params[paramItems].([]map[string]any); typedOK {
			for _, item := range typed {
				rawItems = append(rawItems, item)
			}
		} else {
			return core.Action{}, fmt.Errorf("gojob: action items are missing")
		}
	}
	descs := make([]core.RequestDescription, 0, len(rawItems))
	for index, raw := range rawItems {
		item, itemOK := raw.(map[string]any)
		if !itemOK {
			return core.Action{}, fmt.Errorf("gojob: item %d is %T, expected an object", index, raw)
		}
		descs = append(descs, decodeRequest(item))
	}

	action := core.Action{Kind: kind}
	if batch, _ := params[paramBatch].(bool); batch {
		action.Payload = core.BatchPayload(descs...)
	} else {
		if len(descs) != 1 {
			return core.Action{}, fmt.Errorf("gojob: single action carries %d items", len(descs))
		}
		action.Payload = core.SinglePayload(descs[0])
	}

	if authenticate, ok := params[paramAuthenticate].(bool); ok {
		action.Meta.Authenticate = core.Authenticate(authenticate)
	}
	action.Meta.PreserveHeaders = stringSlice(params[paramPreserveHeaders])
	action.Meta.OptimisticID, _ = params[paramOptimisticID].(string)
	if values, ok := params[paramValues].(map[string]any); ok && len(values) > 0 {
		action.Meta.Values = make(map[string]any, len(values))
		for key, value := range values {
			action.Meta.Values[key] = value
		}
	}
	return action, nil
}

func encodeRequest(desc core.RequestDescription) map[string]any {
	out := map[string]any{"endpoint": desc.Endpoint}
	if desc.Method != "" {
		out["method"] = desc.Method
	}
	if len(desc.Headers) > 0 {
		headers := make(map[string]any, len(desc.Headers))
		for key, value := range desc.Headers {
			headers[key] = value
		}
		out["headers"] = headers
	}
	if desc.Body != nil {
		out["body"] = string(desc.Body)
	}
	if desc.Credentials != "" {
		out["credentials"] = desc.Credentials
	}
	return out
}

func decodeRequest(item map[string]any) core.RequestDescription {
	desc := core.RequestDescription{}
	desc.Endpoint, _ = item["endpoint"].(string)
	desc.Method, _ = item["method"].(string)
	desc.Credentials, _ = item["credentials"].(string)
	if body, ok := item["body"].(string); ok {
		desc.Body = []byte(body)
	}
	switch headers := item["headers"].(type) {
	case map[string]any:
		desc.Headers = make(map[string]string, len(headers))
		for key, value := range headers {
			desc.Headers[key] = fmt.Sprint(value)
		}
	case map[string]string:
		desc.Headers = make(map[string]string, len(headers))
		for key, value := range headers {
			desc.Headers[key] = value
		}
	}
	return desc
}

func stringSlice(raw any) []string {
	switch typed := raw.(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, value := range typed {
			if text, ok := value.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}
