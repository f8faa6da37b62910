package adapter

import (
	"context"
	"net/http"
	"time"
)

// GullAdapter talks to the "gull" runtime contract: browser automation
// exposed as a single POST /exec endpoint taking a script body.
type GullAdapter struct {
	endpoint string
	client   *http.Client
}

func NewGullAdapter(endpoint string, client *http.Client) *GullAdapter {
	return &GullAdapter{endpoint: endpoint, client: client}
}

var _ BrowserRunner = (*GullAdapter)(nil)

func (a *GullAdapter) Meta(ctx context.Context) (RuntimeMeta, error) {
	var meta RuntimeMeta
	err := shipLikeGET(ctx, a.client, a.endpoint+"/meta", &meta)
	return meta, err
}

func (a *GullAdapter) Healthy(ctx context.Context) error {
	return shipLikeGET(ctx, a.client, a.endpoint+"/health", nil)
}

func (a *GullAdapter) Close() error { return nil }

func (a *GullAdapter) ExecBrowser(ctx context.Context, script string, timeout time.Duration) (ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result ExecutionResult
	err := shipLikePOST(ctx, a.client, a.endpoint+"/exec", map[string]string{"script": script}, &result)
	if ctx.Err() != nil {
		result.TimedOut = true
	}
	return result, err
}
