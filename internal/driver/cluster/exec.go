package cluster

import (
	"context"
	"io"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/kubernetes/remotecommand"
)

func scheme_ParameterCodec() runtime.ParameterCodec {
	return runtime.NewParameterCodec(scheme.Scheme)
}

// execStream adapts remotecommand's callback-based Stream API into an
// io.ReadWriteCloser via pipes, mirroring the shape the docker driver's
// exec stream exposes so the rest of the orchestrator is backend-agnostic.
type execStream struct {
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	done    chan error
	cancel  context.CancelFunc
}

func newExecStream(ctx context.Context, executor remotecommand.Executor) *execStream {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	ctx, cancel := context.WithCancel(ctx)

	es := &execStream{stdinW: stdinW, stdoutR: stdoutR, done: make(chan error, 1), cancel: cancel}

	go func() {
		err := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdin:  stdinR,
			Stdout: stdoutW,
			Stderr: io.Discard,
			Tty:    false,
		})
		stdoutW.CloseWithError(err)
		es.done <- err
	}()

	return es
}

func (e *execStream) Read(p []byte) (int, error)  { return e.stdoutR.Read(p) }
func (e *execStream) Write(p []byte) (int, error) { return e.stdinW.Write(p) }
func (e *execStream) Close() error {
	e.cancel()
	e.stdinW.Close()
	return nil
}
