package docker

import (
	"io"
	"os"

	"github.com/docker/docker/api/types"
)

// Stream adapts a Docker exec attachment (which multiplexes stdout/stderr
// behind 8-byte frame headers when Tty is false) into a clean
// io.ReadWriteCloser: reads yield demultiplexed stdout only, stderr is
// forwarded to the process's own stderr for diagnostics.
type Stream struct {
	resp   types.HijackedResponse
	reader *io.PipeReader
	writer *io.PipeWriter
}

// NewStream starts demultiplexing resp in a background goroutine.
func NewStream(resp types.HijackedResponse) *Stream {
	pr, pw := io.Pipe()
	s := &Stream{resp: resp, reader: pr, writer: pw}
	go s.demux()
	return s
}

func (s *Stream) demux() {
	defer s.writer.Close()
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(s.resp.Reader, header); err != nil {
			return
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size < 0 {
			return
		}
		switch header[0] {
		case 1: // stdout
			if _, err := io.CopyN(s.writer, s.resp.Reader, int64(size)); err != nil {
				return
			}
		case 2: // stderr
			io.CopyN(os.Stderr, s.resp.Reader, int64(size))
		default:
			io.CopyN(io.Discard, s.resp.Reader, int64(size))
		}
	}
}

func (s *Stream) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *Stream) Write(p []byte) (int, error) { return s.resp.Conn.Write(p) }
func (s *Stream) Close() error {
	s.resp.Close()
	s.writer.Close()
	return nil
}
