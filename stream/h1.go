package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/corvid-labs/wireclient/netsock"
	"github.com/corvid-labs/wireclient/wireerr"
)

// h1Sender writes requests directly onto the wire in the exact header
// order it is given rather than going through net/http's Transport, which
// neither preserves header insertion order nor exact casing (see the
// header package doc comment). It owns the socket exclusively: one
// request at a time, no multiplexing.
type h1Sender struct {
	socket *netsock.Socket
	reader *bufio.Reader
	host   string
	port   string
}

func newH1Sender(socket *netsock.Socket, host, port string) *h1Sender {
	return &h1Sender{socket: socket, reader: bufio.NewReader(socket), host: host, port: port}
}

func (s *h1Sender) Protocol() string { return "http/1.1" }

func (s *h1Sender) Send(ctx context.Context, req *Request) (*Response, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.socket.SetDeadline(dl)
	}

	if err := s.writeRequest(req); err != nil {
		return nil, wireerr.New(wireerr.KindConnectionReset, s.host, s.port, err).WithOp("write-request")
	}
	s.socket.MarkUsed()

	resp, err := s.readResponse(req)
	if err != nil {
		return nil, wireerr.New(wireerr.KindEmptyResponse, s.host, s.port, err).WithOp("read-response")
	}
	return resp, nil
}

// writeRequest serializes req onto the socket byte-exactly in req.Headers'
// order: request line, then every header pair in sequence, then the body
// framed per RFC 7230 (Transfer-Encoding wins over Content-Length when both
// would otherwise apply).
func (s *h1Sender) writeRequest(req *Request) error {
	bw := bufio.NewWriter(s.socket)

	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", req.Method, req.Path); err != nil {
		return err
	}

	chunked := req.ContentLength < 0 && req.Body != nil
	wroteTE, wroteCL := false, false
	req.Headers.Each(func(name, value string) {
		if wroteTE || wroteCL {
			return
		}
		switch {
		case equalFoldASCII(name, "Transfer-Encoding"):
			wroteTE = true
		case equalFoldASCII(name, "Content-Length"):
			wroteCL = true
		}
	})

	write := func(name, value string) error {
		_, err := fmt.Fprintf(bw, "%s: %s\r\n", name, value)
		return err
	}
	var writeErr error
	req.Headers.Each(func(name, value string) {
		if writeErr != nil {
			return
		}
		writeErr = write(name, value)
	})
	if writeErr != nil {
		return writeErr
	}

	if chunked && !wroteTE {
		if err := write("Transfer-Encoding", "chunked"); err != nil {
			return err
		}
	} else if !chunked && !wroteCL && req.ContentLength >= 0 {
		if err := write("Content-Length", strconv.FormatInt(req.ContentLength, 10)); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}

	if req.Body != nil {
		defer req.Body.Close()
		if chunked {
			if err := writeChunked(bw, req.Body); err != nil {
				return err
			}
		} else if _, err := io.Copy(bw, req.Body); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writeChunked(w *bufio.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := fmt.Fprintf(w, "%x\r\n", n); werr != nil {
				return werr
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := w.WriteString("\r\n"); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			_, werr := w.WriteString("0\r\n\r\n")
			return werr
		}
		if err != nil {
			return err
		}
	}
}

// readResponse parses the status line and headers, looping past any 1xx
// informational response except 101 Switching Protocols, which is
// surfaced as-is. http.ReadResponse's Body already honors
// Transfer-Encoding/Content-Length framing.
func (s *h1Sender) readResponse(req *Request) (*Response, error) {
	httpReq := &http.Request{Method: req.Method}
	for {
		resp, err := http.ReadResponse(s.reader, httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 100 && resp.StatusCode < 200 && resp.StatusCode != http.StatusSwitchingProtocols {
			continue
		}
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     map[string][]string(resp.Header),
			Body:       resp.Body,
			Proto:      resp.Proto,
		}, nil
	}
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
