package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxMediaBytes caps a single fetched media element (emote images are tiny;
// this is a guard against surprises).
const maxMediaBytes = 1 << 20

// MediaResolver fetches media bytes over HTTP so captured entries embed their
// attachments.
type MediaResolver struct {
	Client *http.Client
}

// NewMediaResolver returns a resolver with a bounded request timeout.
func NewMediaResolver() *MediaResolver {
	return &MediaResolver{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (r *MediaResolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	return data, nil
}
