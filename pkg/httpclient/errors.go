package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Error codes carried by APIError.
const (
	CodeHTTP    = "HTTP_ERROR"
	CodeNetwork = "NETWORK_ERROR"
	CodeTimeout = "TIMEOUT"
	CodeUnknown = "UNKNOWN_ERROR"
)

// APIError describes a failed request. Status is 0 when no response was received.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Body    string `json:"body,omitempty"`
	Err     error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	msg := fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	if e.Body != "" && e.Body != e.Message {
		msg += " - " + e.Body
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// fromResponse builds an APIError for a non-2xx response. A JSON body with
// "message" and "code" fields overrides the defaults.
func fromResponse(status int, body []byte) *APIError {
	e := &APIError{
		Status:  status,
		Code:    CodeHTTP,
		Message: http.StatusText(status),
		Body:    string(body),
	}
	if e.Message == "" {
		e.Message = "Server Error"
	}
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "message"); m.Type == gjson.String && m.Str != "" {
			e.Message = m.Str
		}
		if c := gjson.GetBytes(body, "code"); c.Type == gjson.String && c.Str != "" {
			e.Code = c.Str
		}
	}
	return e
}
