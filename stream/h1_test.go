package stream

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/corvid-labs/wireclient/header"
	"github.com/corvid-labs/wireclient/netsock"
)

func pipeSender(t *testing.T) (*h1Sender, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return newH1Sender(netsock.Wrap(client, netsock.KindPlain), "example.com", "443"), server
}

func TestH1SenderWritesHeadersInOrder(t *testing.T) {
	s, server := pipeSender(t)

	h := header.New(
		header.Pair{Name: ":method", Value: "GET"},
		header.Pair{Name: "Host", Value: "example.com"},
		header.Pair{Name: "Accept", Value: "*/*"},
	)
	req := &Request{Method: "GET", Path: "/", Headers: h, ContentLength: 0}

	done := make(chan struct{})
	var raw string
	go func() {
		buf := make([]byte, 4096)
		n, _ := server.Read(buf)
		raw = string(buf[:n])
		server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.Send(ctx, req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done

	lines := strings.Split(raw, "\r\n")
	if lines[0] != "GET / HTTP/1.1" {
		t.Fatalf("unexpected request line: %q", lines[0])
	}
	if lines[1] != ":method: GET" || lines[2] != "Host: example.com" || lines[3] != "Accept: */*" {
		t.Fatalf("headers out of order: %v", lines[1:4])
	}
}

func TestH1SenderUsesChunkedWhenContentLengthUnknown(t *testing.T) {
	s, server := pipeSender(t)

	h := header.New(header.Pair{Name: "Host", Value: "example.com"})
	req := &Request{
		Method:        "POST",
		Path:          "/upload",
		Headers:       h,
		Body:          io.NopCloser(strings.NewReader("hello")),
		ContentLength: -1,
	}

	done := make(chan struct{})
	var raw string
	go func() {
		r := bufio.NewReader(server)
		var sb strings.Builder
		for {
			line, err := r.ReadString('\n')
			sb.WriteString(line)
			if err != nil || line == "\r\n" {
				break
			}
		}
		// Drain the chunked body too.
		rest := make([]byte, 256)
		n, _ := r.Read(rest)
		sb.Write(rest[:n])
		raw = sb.String()
		server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.Send(ctx, req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done

	if !strings.Contains(raw, "Transfer-Encoding: chunked") {
		t.Fatalf("expected chunked Transfer-Encoding header, got %q", raw)
	}
	if !strings.Contains(raw, "5\r\nhello\r\n") {
		t.Fatalf("expected chunked body framing, got %q", raw)
	}
}

func TestH1SenderSendsContentLengthWhenKnown(t *testing.T) {
	s, server := pipeSender(t)

	h := header.New(header.Pair{Name: "Host", Value: "example.com"})
	req := &Request{
		Method:        "POST",
		Path:          "/",
		Headers:       h,
		Body:          io.NopCloser(strings.NewReader("abc")),
		ContentLength: 3,
	}

	done := make(chan struct{})
	var raw string
	go func() {
		buf := make([]byte, 4096)
		n, _ := server.Read(buf)
		raw = string(buf[:n])
		server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.Send(ctx, req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done

	if !strings.Contains(raw, "Content-Length: 3") {
		t.Fatalf("expected Content-Length: 3, got %q", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\nabc") {
		t.Fatalf("expected body abc after headers, got %q", raw)
	}
}
