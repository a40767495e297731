package websocket

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func withTestNonceGen() DialOpt {
	return func(c *Conn) {
		c.nonceGen = strings.NewReader("0123456789abcdef")
	}
}

// fakeServerResponse is the raw response line+headers a test server sends
// back for the single handshake request it expects to receive.
type fakeServerResponse struct {
	status     int
	upgrade    string
	connection string
	accept     string
}

func (r fakeServerResponse) bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d Switching Protocols\r\n", r.status)
	if r.upgrade != "" {
		fmt.Fprintf(&b, "Upgrade: %s\r\n", r.upgrade)
	}
	if r.connection != "" {
		fmt.Fprintf(&b, "Connection: %s\r\n", r.connection)
	}
	if r.accept != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Accept: %s\r\n", r.accept)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// startFakeServer accepts exactly one connection, drains the request up to
// the blank line that ends the headers, then writes resp and closes.
func startFakeServer(t *testing.T, resp fakeServerResponse) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil || line == "\r\n" || line == "\n" {
				break
			}
		}

		_, _ = conn.Write(resp.bytes())
	}()

	return ln.Addr().String()
}

func TestDial(t *testing.T) {
	// The nonce is fixed by withTestNonceGen ("0123456789abcdef" base64-encoded),
	// so the expected Sec-WebSocket-Accept value is stable across test cases.
	const validAccept = "BACScCJPNqyz+UBoqMH89VmURoA="

	tests := []struct {
		name       string
		status     int
		upgrade    string
		connection string
		accept     string
		wantErr    bool
	}{
		{
			name:       "200_instead_of_101",
			status:     200,
			upgrade:    "websocket",
			connection: "Upgrade",
			accept:     validAccept,
			wantErr:    true,
		},
		{
			name:       "no_upgrade_header",
			status:     101,
			connection: "Upgrade",
			accept:     validAccept,
			wantErr:    true,
		},
		{
			name:    "no_connection_header",
			status:  101,
			upgrade: "websocket",
			accept:  validAccept,
			wantErr: true,
		},
		{
			name:       "no_accept_header",
			status:     101,
			upgrade:    "websocket",
			connection: "Upgrade",
			wantErr:    true,
		},
		{
			name:       "happy_path",
			status:     101,
			upgrade:    "websocket",
			connection: "Upgrade",
			accept:     validAccept,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startFakeServer(t, fakeServerResponse{
				status:     tt.status,
				upgrade:    tt.upgrade,
				connection: tt.connection,
				accept:     tt.accept,
			})

			_, err := Dial(t.Context(), "ws://"+addr, withTestNonceGen())
			if (err != nil) != tt.wantErr {
				t.Errorf("Dial() error = %v, want error = %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsSecureScheme(t *testing.T) {
	tests := []struct {
		scheme  string
		want    bool
		wantErr bool
	}{
		{scheme: "ws", want: false},
		{scheme: "wss", want: true},
		{scheme: "http", wantErr: true},
		{scheme: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			got, err := isSecureScheme(tt.scheme)
			if (err != nil) != tt.wantErr {
				t.Fatalf("isSecureScheme(%q) error = %v, wantErr %v", tt.scheme, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("isSecureScheme(%q) = %v, want %v", tt.scheme, got, tt.want)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidURI) {
				t.Errorf("isSecureScheme(%q) error kind = %v, want %v", tt.scheme, err, ErrInvalidURI)
			}
		})
	}
}

func TestGenerateNonce(t *testing.T) {
	n1, err := generateNonce(rand.Reader)
	if err != nil {
		t.Error(err)
	}
	n2, err := generateNonce(rand.Reader)
	if err != nil {
		t.Error(err)
	}
	if n1 == n2 {
		t.Errorf("generateNonce(rand.Reader) not random")
	}

	r := strings.NewReader("abcdefghijklmnopabcdefghijklmnop")
	n3, err := generateNonce(r)
	if err != nil {
		t.Error(err)
	}
	n4, err := generateNonce(r)
	if err != nil {
		t.Error(err)
	}
	if n3 != n4 {
		t.Errorf("generateNonce(r) = %q, want %q", n3, n4)
	}
}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		line    string
		want    int
		wantErr bool
	}{
		{line: "HTTP/1.1 101 Switching Protocols", want: 101},
		{line: "HTTP/1.1 200 OK", want: 200},
		{line: "garbage", wantErr: true},
		{line: "HTTP/1.1 notanumber", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseStatusLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStatusLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("parseStatusLine(%q) = %d, want %d", tt.line, got, tt.want)
			}
		})
	}
}

func TestConnectionHeaderHasUpgrade(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "Upgrade", want: true},
		{value: "keep-alive, Upgrade", want: true},
		{value: "upgrade", want: true},
		{value: "keep-alive", want: false},
		{value: "", want: false},
		{value: "keep-alive Upgrade", want: true},
		{value: "Upgrade keep-alive", want: true},
		{value: "keep-alive\tUpgrade", want: true},
	}

	for _, tt := range tests {
		if got := connectionHeaderHasUpgrade(tt.value); got != tt.want {
			t.Errorf("connectionHeaderHasUpgrade(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestCheckHandshakeResponse(t *testing.T) {
	const nonce = "dGhlIHNhbXBsZSBub25jZQ=="
	accept := expectedServerAcceptValue(nonce)

	tests := []struct {
		name    string
		resp    fakeServerResponse
		wantErr bool
	}{
		{
			name: "success",
			resp: fakeServerResponse{status: 101, upgrade: "websocket", connection: "Upgrade", accept: accept},
		},
		{
			name:    "wrong_status",
			resp:    fakeServerResponse{status: 200, upgrade: "websocket", connection: "Upgrade", accept: accept},
			wantErr: true,
		},
		{
			name:    "wrong_accept",
			resp:    fakeServerResponse{status: 101, upgrade: "websocket", connection: "Upgrade", accept: "bogus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReader(bytes.NewReader(tt.resp.bytes()))
			err := checkHandshakeResponse(br, nonce)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkHandshakeResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpectedServerAcceptValue(t *testing.T) {
	// RFC 6455 section 1.3 worked example.
	got := expectedServerAcceptValue("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("expectedServerAcceptValue() = %q, want %q", got, want)
	}
}
