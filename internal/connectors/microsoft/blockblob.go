package microsoft

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

// blockSize is the chunk size for block blob uploads. Intune content
// uploads tolerate up to 100 MiB per block; 6 MiB keeps memory and
// retry cost low.
const blockSize = 6 * 1024 * 1024

// BlobClient uploads and downloads Azure Storage blobs via SAS URLs.
// Downloads use a generous timeout since installer packages run to
// hundreds of megabytes.
type BlobClient struct {
	httpClient *http.Client
}

var _ driven.BlobClient = (*BlobClient)(nil)

// NewBlobClient creates a blob client.
func NewBlobClient() *BlobClient {
	return &BlobClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Download fetches the blob at url.
func (b *BlobClient) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob body: %w", err)
	}

	slog.Debug("blob downloaded", "bytes", len(data))
	return data, nil
}

// UploadBlockBlob uploads content in blocks and commits the block
// list. Block ids are the base64 encoding of the zero-padded block
// index, the scheme Intune's own upload tooling uses.
func (b *BlobClient) UploadBlockBlob(ctx context.Context, sasURI string, content []byte) (int, error) {
	total := (len(content) + blockSize - 1) / blockSize
	blockIDs := make([]string, 0, total)

	for i := 0; i < total; i++ {
		start := i * blockSize
		end := min(start+blockSize, len(content))

		blockID := base64.StdEncoding.EncodeToString(fmt.Appendf(nil, "%05d", i))
		blockIDs = append(blockIDs, blockID)

		uri := fmt.Sprintf("%s&comp=block&blockid=%s", sasURI, blockID)
		if err := b.put(ctx, uri, content[start:end], "application/octet-stream"); err != nil {
			return i, fmt.Errorf("upload block %d/%d: %w", i+1, total, err)
		}
	}

	var list strings.Builder
	list.WriteString(`<?xml version="1.0" encoding="utf-8"?><BlockList>`)
	for _, id := range blockIDs {
		list.WriteString("<Latest>" + id + "</Latest>")
	}
	list.WriteString("</BlockList>")

	commitURI := sasURI + "&comp=blocklist"
	if err := b.put(ctx, commitURI, []byte(list.String()), "application/xml"); err != nil {
		return total, fmt.Errorf("commit block list: %w", err)
	}

	slog.Debug("block blob uploaded", "blocks", total, "bytes", len(content))
	return total, nil
}

func (b *BlobClient) put(ctx context.Context, uri string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("storage upload failed with status %d", resp.StatusCode)
	}
	return nil
}
