package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/user"
)

var (
	ErrInvalidResponse = errors.New("invalid response from server")
	ErrSignedOut       = errors.New("signed out")
)

// known maps server messages back to the domain errors they come from.
var known = map[int][]error{
	http.StatusBadRequest: {quiz.ErrIncomplete, lesson.ErrNoPDF},
	http.StatusForbidden:  {user.ErrBanned},
	http.StatusConflict:   {quiz.ErrAlreadyTaken, quiz.ErrTestNotStarted, quiz.ErrTestClosed, quiz.ErrNoQuestions},
}

// APIError is an error response of the API.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string // validation errors, by field
	SignedOut  bool              // the server closed the session
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+": "+e.Fields[name])
		}
		return fmt.Sprintf("%d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Unauthorized reports whether the request needs a (new) sign in.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.SignedOut
}

func decodeError(res *http.Response) error {
	apiErr := &APIError{StatusCode: res.StatusCode}

	var body map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body); err != nil {
		return apiErr
	}
	if msg, ok := body["error"].(string); ok {
		apiErr.Message = msg
		apiErr.SignedOut, _ = body["signed_out"].(bool)
	} else {
		apiErr.Fields = make(map[string]string, len(body))
		for k, v := range body {
			if s, ok := v.(string); ok {
				apiErr.Fields[k] = s
			}
		}
	}

	for _, err := range known[res.StatusCode] {
		if apiErr.Message == err.Error() {
			return err
		}
	}
	return apiErr
}

// IsUnauthorized reports whether err means that the session is no longer valid.
func IsUnauthorized(err error) bool {
	if errors.Cause(err) == ErrSignedOut {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}
