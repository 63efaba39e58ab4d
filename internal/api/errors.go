package api

import (
	"encoding/json"
	"strings"
)

// APIError is a non-success response from the backend
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return e.Detail
}

// newAPIError surfaces the body's detail field, or fallback when absent.
// FastAPI validation failures carry a list of {msg} objects instead of a string.
func newAPIError(status int, body []byte, fallback string) *APIError {
	apiErr := &APIError{Status: status, Detail: fallback}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return apiErr
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		if text != "" {
			apiErr.Detail = text
		}
		return apiErr
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		if len(msgs) > 0 {
			apiErr.Detail = strings.Join(msgs, "; ")
		}
	}
	return apiErr
}
