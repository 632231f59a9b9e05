// Package jwks downloads the user pool's JSON Web Key Set.
package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-jose/go-jose/v3"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
)

// maxBodySize bounds the key set download.
const maxBodySize = 1 << 20

// Fetcher retrieves a key set from a fixed URL.
type Fetcher struct {
	url    string
	client *http.Client
}

// New creates a fetcher for url. A nil client uses http.DefaultClient.
func New(url string, client *http.Client) (*Fetcher, error) {
	if url == "" {
		return nil, awserrors.Configuration("jwks.New", "key set url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{url: url, client: client}, nil
}

// Fetch downloads the key set and returns the body unchanged after checking
// it is a non-empty JSON Web Key Set.
func (f *Fetcher) Fetch(ctx context.Context) (json.RawMessage, error) {
	const op = "jwks.Fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, awserrors.Configuration(op, "invalid key set url: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, awserrors.Remote(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, awserrors.RemoteCode(op, awserrors.ErrorUnexpectedHTTPStatus, fmt.Sprintf("GET %s: %s", f.url, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, awserrors.Remote(op, err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, awserrors.Protocol(op, "invalid key set: %v", err)
	}
	if len(set.Keys) == 0 {
		return nil, awserrors.Protocol(op, "key set has no keys")
	}

	slog.Debug("Downloaded key set", "url", f.url, "keys", len(set.Keys))
	return json.RawMessage(body), nil
}

// Handle is the Lambda entry point.
func (f *Fetcher) Handle(ctx context.Context) (json.RawMessage, error) {
	return f.Fetch(ctx)
}
