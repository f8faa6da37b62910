// Package router implements the Capability Router: given a sandbox ID and
// a capability name, it resolves the live session, finds the container
// that serves that capability, fetches (or builds) the matching adapter
// from the Adapter Pool, and dispatches the call.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/adapter"
	"github.com/shipyard-neo/bay/internal/adapterpool"
	"github.com/shipyard-neo/bay/internal/apperror"
	"github.com/shipyard-neo/bay/internal/sandboxmgr"
	"github.com/shipyard-neo/bay/internal/store"
)

const (
	CapabilityExecPython  = "exec_python"
	CapabilityExecShell   = "exec_shell"
	CapabilityExecBrowser = "exec_browser"
	CapabilityFS          = "fs"
)

const DefaultExecTimeout = 30 * time.Second

// Router dispatches capability calls for a sandbox.
type Router struct {
	sandboxes *sandboxmgr.Manager
	sessions  *store.SessionStore
	pool      *adapterpool.Pool
	log       zerolog.Logger

	metaMu    sync.Mutex
	metaCache map[string]adapter.RuntimeMeta // keyed by endpoint
}

func New(sandboxes *sandboxmgr.Manager, sessions *store.SessionStore, pool *adapterpool.Pool, log zerolog.Logger) *Router {
	return &Router{
		sandboxes: sandboxes, sessions: sessions, pool: pool,
		log:       log.With().Str("component", "router").Logger(),
		metaCache: map[string]adapter.RuntimeMeta{},
	}
}

// metaFor returns the runtime's advertised capability set for endpoint,
// fetching GET /meta on first use and caching it thereafter: a runtime's
// advertised capabilities are fixed for the container's lifetime.
func (r *Router) metaFor(ctx context.Context, endpoint string, a adapter.BaseAdapter) (adapter.RuntimeMeta, error) {
	r.metaMu.Lock()
	if meta, ok := r.metaCache[endpoint]; ok {
		r.metaMu.Unlock()
		return meta, nil
	}
	r.metaMu.Unlock()

	meta, err := a.Meta(ctx)
	if err != nil {
		return adapter.RuntimeMeta{}, apperror.Wrap(apperror.KindRuntimeError, err, "failed to fetch runtime metadata")
	}

	r.metaMu.Lock()
	r.metaCache[endpoint] = meta
	r.metaMu.Unlock()
	return meta, nil
}

func (r *Router) requireCapability(ctx context.Context, sandboxID, capability string, kind adapterpool.Kind) (adapter.BaseAdapter, error) {
	sess, err := r.sandboxes.EnsureSession(ctx, sandboxID, r.sessions)
	if err != nil {
		return nil, err
	}
	if !sess.IsReady() {
		return nil, apperror.New(apperror.KindSessionNotReady, "session is not ready to serve requests")
	}

	endpoint := sess.Endpoint(capability)
	if endpoint == "" {
		return nil, apperror.Newf(apperror.KindCapabilityNotSupported, "no container in this session serves capability %q", capability)
	}

	a, err := r.pool.Get(ctx, endpoint, kind)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindRuntimeError, err, "failed to reach runtime adapter")
	}

	meta, err := r.metaFor(ctx, endpoint, a)
	if err != nil {
		return nil, err
	}
	if !containsCapability(meta.Capabilities, capability) {
		return nil, apperror.Newf(apperror.KindCapabilityNotSupported, "runtime at %q does not advertise capability %q", endpoint, capability)
	}

	if err := r.sandboxes.Touch(ctx, sandboxID); err != nil {
		r.log.Warn().Err(err).Msg("failed to touch sandbox activity")
	}
	return a, nil
}

func containsCapability(capabilities []string, capability string) bool {
	for _, c := range capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func (r *Router) ExecPython(ctx context.Context, sandboxID, code string) (adapter.ExecutionResult, error) {
	a, err := r.requireCapability(ctx, sandboxID, CapabilityExecPython, adapterpool.KindShip)
	if err != nil {
		return adapter.ExecutionResult{}, err
	}
	runner, ok := a.(adapter.CodeRunner)
	if !ok {
		return adapter.ExecutionResult{}, apperror.New(apperror.KindCapabilityNotSupported, "adapter does not support code execution")
	}
	return runner.ExecPython(ctx, code, DefaultExecTimeout)
}

func (r *Router) ExecShell(ctx context.Context, sandboxID, command string) (adapter.ExecutionResult, error) {
	a, err := r.requireCapability(ctx, sandboxID, CapabilityExecShell, adapterpool.KindShip)
	if err != nil {
		return adapter.ExecutionResult{}, err
	}
	runner, ok := a.(adapter.CodeRunner)
	if !ok {
		return adapter.ExecutionResult{}, apperror.New(apperror.KindCapabilityNotSupported, "adapter does not support code execution")
	}
	return runner.ExecShell(ctx, command, DefaultExecTimeout)
}

// ResolveInteractiveEndpoint returns the raw HTTP endpoint of the
// container currently serving capability for sandboxID, without going
// through the Adapter Pool. It is used by passthrough transports (the
// browser interact WebSocket) that need a direct connection to the
// container rather than a normalized adapter call.
func (r *Router) ResolveInteractiveEndpoint(ctx context.Context, sandboxID, capability string) (string, error) {
	sess, err := r.sandboxes.EnsureSession(ctx, sandboxID, r.sessions)
	if err != nil {
		return "", err
	}
	if !sess.IsReady() {
		return "", apperror.New(apperror.KindSessionNotReady, "session is not ready to serve requests")
	}

	endpoint := sess.Endpoint(capability)
	if endpoint == "" {
		return "", apperror.Newf(apperror.KindCapabilityNotSupported, "no container in this session serves capability %q", capability)
	}

	if err := r.sandboxes.Touch(ctx, sandboxID); err != nil {
		r.log.Warn().Err(err).Msg("failed to touch sandbox activity")
	}
	return endpoint, nil
}

func (r *Router) ExecBrowser(ctx context.Context, sandboxID, script string) (adapter.ExecutionResult, error) {
	a, err := r.requireCapability(ctx, sandboxID, CapabilityExecBrowser, adapterpool.KindGull)
	if err != nil {
		return adapter.ExecutionResult{}, err
	}
	runner, ok := a.(adapter.BrowserRunner)
	if !ok {
		return adapter.ExecutionResult{}, apperror.New(apperror.KindCapabilityNotSupported, "adapter does not support browser execution")
	}
	return runner.ExecBrowser(ctx, script, DefaultExecTimeout)
}

func (r *Router) ReadFile(ctx context.Context, sandboxID, path string) ([]byte, error) {
	a, err := r.requireCapability(ctx, sandboxID, CapabilityFS, adapterpool.KindShip)
	if err != nil {
		return nil, err
	}
	ops, ok := a.(adapter.FileOps)
	if !ok {
		return nil, apperror.New(apperror.KindCapabilityNotSupported, "adapter does not support filesystem access")
	}
	return ops.ReadFile(ctx, path)
}

func (r *Router) WriteFile(ctx context.Context, sandboxID, path string, content []byte) error {
	a, err := r.requireCapability(ctx, sandboxID, CapabilityFS, adapterpool.KindShip)
	if err != nil {
		return err
	}
	ops, ok := a.(adapter.FileOps)
	if !ok {
		return apperror.New(apperror.KindCapabilityNotSupported, "adapter does not support filesystem access")
	}
	return ops.WriteFile(ctx, path, content)
}

func (r *Router) ListFiles(ctx context.Context, sandboxID, path string) ([]adapter.FileStat, error) {
	a, err := r.requireCapability(ctx, sandboxID, CapabilityFS, adapterpool.KindShip)
	if err != nil {
		return nil, err
	}
	ops, ok := a.(adapter.FileOps)
	if !ok {
		return nil, apperror.New(apperror.KindCapabilityNotSupported, "adapter does not support filesystem access")
	}
	return ops.ListFiles(ctx, path)
}

func (r *Router) DeleteFile(ctx context.Context, sandboxID, path string) error {
	a, err := r.requireCapability(ctx, sandboxID, CapabilityFS, adapterpool.KindShip)
	if err != nil {
		return err
	}
	ops, ok := a.(adapter.FileOps)
	if !ok {
		return apperror.New(apperror.KindCapabilityNotSupported, "adapter does not support filesystem access")
	}
	return ops.DeleteFile(ctx, path)
}

// UploadFile and DownloadFile are aliases over WriteFile/ReadFile kept
// distinct at the router layer because the HTTP handlers for them accept
// multipart/raw bodies rather than JSON.
func (r *Router) UploadFile(ctx context.Context, sandboxID, path string, content []byte) error {
	return r.WriteFile(ctx, sandboxID, path, content)
}

func (r *Router) DownloadFile(ctx context.Context, sandboxID, path string) ([]byte, error) {
	return r.ReadFile(ctx, sandboxID, path)
}
