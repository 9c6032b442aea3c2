// Package media resolves the content type of castable resources. Remote URLs
// are probed with a metadata-only request; local files and streams are
// sniffed from their first bytes.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-retryablehttp"
)

// sniffLen is what filetype needs to classify a payload.
const sniffLen = 261

// Resolver issues HEAD requests to determine a remote resource's content type.
type Resolver struct {
	httpClient *http.Client
}

func NewResolver() *Resolver {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil

	return &Resolver{httpClient: retryClient.StandardClient()}
}

// ResolveURL performs a HEAD request against the target URL and returns the
// Content-Type header. A missing header is a hard failure: without a content
// type the receiver cannot be told what it is loading.
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("resolveURL request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolveURL HEAD: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return "", fmt.Errorf("resolveURL: no content-type header for %s", rawURL)
	}

	return contentType, nil
}

// DetectFile returns the mime details of a local file.
func DetectFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("detectFile error #1: %w", err)
	}
	defer f.Close()

	return DetectStream(f)
}

// DetectStream returns the mime details of a stream, reading just enough of
// its head to classify it.
func DetectStream(s io.Reader) (string, error) {
	head := make([]byte, sniffLen)
	if _, err := io.ReadAtLeast(s, head, 1); err != nil {
		return "", fmt.Errorf("detectStream error #1: %w", err)
	}

	kind, err := filetype.Match(head)
	if err != nil {
		return "", fmt.Errorf("detectStream error #2: %w", err)
	}

	return fmt.Sprintf("%s/%s", kind.MIME.Type, kind.MIME.Subtype), nil
}
