package driven

import (
	"context"
	"fmt"
)

// GraphRequest describes a single Microsoft Graph API call.
type GraphRequest struct {
	// Method is the HTTP method (GET, POST, PATCH, DELETE).
	Method string
	// Path is the resource path relative to the API root, including any
	// query string (e.g. "/users?$top=50").
	Path string
	// Beta selects the beta endpoint instead of v1.0.
	Beta bool
	// Body is JSON-encoded when non-nil.
	Body any
	// Headers are added to the request (e.g. x-correlation-id).
	Headers map[string]string
}

// GraphResult is the decoded outcome of a Graph API call.
// Body is nil when the response had no JSON payload (e.g. 204).
type GraphResult struct {
	StatusCode int
	Body       map[string]any
}

// GraphClient executes Microsoft Graph API requests.
// A response from the API, including 4xx/5xx, is returned as a
// GraphResult with a nil error; callers branch on StatusCode. An error
// is returned only when no response could be obtained or decoded.
type GraphClient interface {
	Do(ctx context.Context, req GraphRequest) (*GraphResult, error)
}

// OK reports whether the call succeeded (2xx).
func (r *GraphResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessage extracts the message from the Graph error envelope
// {"error": {"code", "message"}}. Falls back to the HTTP status text.
func (r *GraphResult) ErrorMessage() string {
	if env, ok := r.Body["error"].(map[string]any); ok {
		msg, _ := env["message"].(string)
		code, _ := env["code"].(string)
		switch {
		case code != "" && msg != "":
			return code + ": " + msg
		case msg != "":
			return msg
		case code != "":
			return code
		}
	}
	return fmt.Sprintf("HTTP %d", r.StatusCode)
}

// BlobClient moves payloads to and from Azure Blob Storage using SAS
// URLs. Used by the Intune Win32 app upload workflow.
type BlobClient interface {
	// Download fetches the blob at url.
	Download(ctx context.Context, url string) ([]byte, error)

	// UploadBlockBlob uploads content to sasURI as a block blob and
	// commits the block list. Returns the number of blocks written.
	UploadBlockBlob(ctx context.Context, sasURI string, content []byte) (int, error)
}
