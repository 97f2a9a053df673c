package wire

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
)

// webSocketGUID is the RFC-6455 magic string used to derive
// Sec-WebSocket-Accept from the client's key.
const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// HandshakeRequest is the literal upgrade request this protocol's client
// always sends — a fixed key, not a freshly random one, because nothing on
// either side validates it (see DESIGN.md's Open Question resolution).
const HandshakeRequest = "GET / HTTP/1.1\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"\r\n"

// ComputeAccept derives the Sec-WebSocket-Accept value for key.
func ComputeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(webSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// BuildHandshakeResponse renders the literal 101 response the server sends
// once it has parsed the client's Sec-WebSocket-Key.
func BuildHandshakeResponse(key string) []byte {
	accept := ComputeAccept(key)
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n" +
		"\r\n")
}

// HeaderScanner finds the end of an HTTP header block (the first
// "\r\n\r\n") across however many reads it takes to arrive, and extracts
// the Sec-WebSocket-Key header value along the way. It never validates
// anything beyond that — matching the wire contract, which accepts any key
// on the server side and never inspects the response on the client side.
type HeaderScanner struct {
	buf []byte
	key string
	hdr []byte
	done bool
}

// Feed appends newly read bytes and reports whether the end of headers has
// been seen, returning any bytes consumed beyond the header block (the
// start of the first frame, if the peer pipelined it).
func (s *HeaderScanner) Feed(data []byte) (finished bool, rest []byte) {
	if s.done {
		return true, data
	}
	s.buf = append(s.buf, data...)
	idx := bytes.Index(s.buf, []byte("\r\n\r\n"))
	if idx == -1 {
		return false, nil
	}
	s.hdr = s.buf[:idx]
	s.done = true
	s.key = extractKey(s.hdr)
	return true, s.buf[idx+4:]
}

// Key returns the Sec-WebSocket-Key header value once Feed has reported
// finished == true (empty string if the client omitted it, which the
// server accepts).
func (s *HeaderScanner) Key() string { return s.key }

func extractKey(hdr []byte) string {
	lines := bytes.Split(hdr, []byte("\r\n"))
	for _, line := range lines {
		const prefix = "Sec-WebSocket-Key:"
		if len(line) > len(prefix) && bytes.EqualFold(line[:len(prefix)], []byte(prefix)) {
			return string(bytes.TrimSpace(line[len(prefix):]))
		}
	}
	return ""
}
