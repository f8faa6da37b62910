package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ShipAdapter talks to the "ship" runtime contract: code execution
// (ipython/shell) and filesystem operations over plain REST.
type ShipAdapter struct {
	endpoint string
	client   *http.Client
}

func NewShipAdapter(endpoint string, client *http.Client) *ShipAdapter {
	return &ShipAdapter{endpoint: endpoint, client: client}
}

var _ CodeRunner = (*ShipAdapter)(nil)
var _ FileOps = (*ShipAdapter)(nil)

func (a *ShipAdapter) Meta(ctx context.Context) (RuntimeMeta, error) {
	var meta RuntimeMeta
	err := shipLikeGET(ctx, a.client, a.endpoint+"/meta", &meta)
	return meta, err
}

func (a *ShipAdapter) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (a *ShipAdapter) Close() error { return nil }

type execRequest struct {
	Code    string `json:"code,omitempty"`
	Command string `json:"command,omitempty"`
}

func (a *ShipAdapter) ExecPython(ctx context.Context, code string, timeout time.Duration) (ExecutionResult, error) {
	return a.exec(ctx, "/ipython/exec", execRequest{Code: code}, timeout)
}

func (a *ShipAdapter) ExecShell(ctx context.Context, command string, timeout time.Duration) (ExecutionResult, error) {
	return a.exec(ctx, "/shell/exec", execRequest{Command: command}, timeout)
}

func (a *ShipAdapter) exec(ctx context.Context, path string, body any, timeout time.Duration) (ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result ExecutionResult
	err := shipLikePOST(ctx, a.client, a.endpoint+path, body, &result)
	if ctx.Err() != nil {
		result.TimedOut = true
	}
	return result, err
}

type fsReadResponse struct {
	ContentBase64 string `json:"content_base64"`
}

func (a *ShipAdapter) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var resp fsReadResponse
	if err := shipLikePOST(ctx, a.client, a.endpoint+"/fs/read", map[string]string{"path": path}, &resp); err != nil {
		return nil, err
	}
	return decodeBase64(resp.ContentBase64)
}

func (a *ShipAdapter) WriteFile(ctx context.Context, path string, content []byte) error {
	body := map[string]string{"path": path, "content_base64": encodeBase64(content)}
	return shipLikePOST(ctx, a.client, a.endpoint+"/fs/write", body, nil)
}

type fsListResponse struct {
	Entries []FileStat `json:"entries"`
}

func (a *ShipAdapter) ListFiles(ctx context.Context, path string) ([]FileStat, error) {
	var resp fsListResponse
	if err := shipLikePOST(ctx, a.client, a.endpoint+"/fs/list", map[string]string{"path": path}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (a *ShipAdapter) DeleteFile(ctx context.Context, path string) error {
	return shipLikePOST(ctx, a.client, a.endpoint+"/fs/delete", map[string]string{"path": path}, nil)
}
