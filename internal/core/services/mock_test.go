package services

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

// fakeGraph scripts Graph responses for service tests and records
// every request it receives.
type fakeGraph struct {
	mu      sync.Mutex
	calls   []driven.GraphRequest
	handler func(driven.GraphRequest) (*driven.GraphResult, error)
}

func (f *fakeGraph) Do(_ context.Context, req driven.GraphRequest) (*driven.GraphResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.handler != nil {
		return f.handler(req)
	}
	return ok(map[string]any{}), nil
}

func (f *fakeGraph) requests() []driven.GraphRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driven.GraphRequest(nil), f.calls...)
}

// callsTo returns the requests whose path starts with prefix.
func (f *fakeGraph) callsTo(prefix string) []driven.GraphRequest {
	var out []driven.GraphRequest
	for _, req := range f.requests() {
		if strings.HasPrefix(req.Path, prefix) {
			out = append(out, req)
		}
	}
	return out
}

func ok(body map[string]any) *driven.GraphResult {
	return &driven.GraphResult{StatusCode: http.StatusOK, Body: body}
}

func created(body map[string]any) *driven.GraphResult {
	return &driven.GraphResult{StatusCode: http.StatusCreated, Body: body}
}

func noContent() *driven.GraphResult {
	return &driven.GraphResult{StatusCode: http.StatusNoContent}
}

func graphError(status int, code, message string) *driven.GraphResult {
	return &driven.GraphResult{
		StatusCode: status,
		Body: map[string]any{
			"error": map[string]any{"code": code, "message": message},
		},
	}
}

func listBody(items ...any) map[string]any {
	return map[string]any{"value": items}
}

// fakeBlob scripts blob storage interactions.
type fakeBlob struct {
	mu        sync.Mutex
	content   []byte
	downloads []string
	uploads   []string
	uploaded  []byte

	downloadErr error
	uploadErr   error
}

func (f *fakeBlob) Download(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.content, nil
}

func (f *fakeBlob) UploadBlockBlob(_ context.Context, sasURI string, content []byte) (int, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, sasURI)
	f.uploaded = content
	f.mu.Unlock()
	if f.uploadErr != nil {
		return 0, f.uploadErr
	}
	return 1, nil
}
