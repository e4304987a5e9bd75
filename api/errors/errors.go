package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// Messages returned to clients. Internal detail stays in logs and traces.
const (
	MsgEmailNotFound   = "Email not found"
	MsgReplyFailed     = "Error sending reply"
	MsgInternal        = "Internal server error"
	MsgInvalidRequest  = "Invalid request"
	MsgNotConnected    = "Mailbox not connected"
	MsgAnalysisPending = "Analysis already pending"
)

type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns client-safe messages keyed by field.
func (e *MultiErrors) Fields() map[string][]string {
	fields := make(map[string][]string, len(e.Errors))
	for field, errs := range e.Errors {
		for _, err := range errs {
			fields[field] = append(fields[field], err.Message)
		}
	}
	return fields
}

func (e *MultiErrors) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		keys = append(keys, field)
	}
	sort.Strings(keys)

	var parts []string
	for _, field := range keys {
		for _, err := range e.Errors[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func AbortValidation(c *gin.Context, errs *MultiErrors) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  MsgInvalidRequest,
		"fields": errs.Fields(),
	})
}
