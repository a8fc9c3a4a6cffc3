package pipelines

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/five82/sluice/internal/errstore"
)

// ErrNotFound matches API errors with status 404.
var ErrNotFound = errors.New("pipelines: not found")

// APIError is returned for responses with a 4xx or 5xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Error code parts.
const (
	ClassPipelines   = "Pipelines"
	VisibilityPublic = "Public"

	MethodFetchPipelines = "FetchPipelines"
	MethodFetchPipeline  = "FetchPipeline"
	MethodFetchRuns      = "FetchRuns"

	genericStatus = "Generic"
)

// StatusCode returns the HTTP status carried by err, 0 when there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ErrorCode builds the stable record code for a failed call:
// <Class>_<Visibility>_<Method>_<HttpStatusOrGeneric>.
func ErrorCode(class, visibility, method string, err error) string {
	status := genericStatus
	if code := StatusCode(err); code > 0 {
		status = strconv.Itoa(code)
	}
	return strings.Join([]string{class, visibility, method, status}, "_")
}

// CodePrefix returns the part of ErrorCode shared by every status of a call.
func CodePrefix(class, visibility, method string) string {
	return strings.Join([]string{class, visibility, method}, "_") + "_"
}

// NotFound returns the first record that came from a 404.
func NotFound(records []errstore.Record) (errstore.Record, bool) {
	for _, rec := range records {
		if rec.StatusCode == http.StatusNotFound {
			return rec, true
		}
	}
	return errstore.Record{}, false
}
