package ws

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/poyaz/bytebeats/internal/domain"
)

const (
	acceptGUID         = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	maxHandshakeHeader = 8 << 10

	switchingProtocolsResponse = "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: %s\r\n\r\n"
	badRequestResponse = "HTTP/1.1 400 Bad Request\r\n" +
		"Connection: close\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 27\r\n\r\n" +
		"Must be a websocket request"
)

// AcceptKey derives the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Accept validates an upgrade request header block and returns the 101 response to send back.
func Accept(request string) (string, error) {
	headers := parseHeaders(request)

	if !headerHasToken(headers["upgrade"], "websocket") {
		return "", fmt.Errorf("%w: not a websocket upgrade", domain.ErrHandshakeRejected)
	}

	key := headers["sec-websocket-key"]
	if key == "" {
		return "", domain.ErrMissingKey
	}

	return fmt.Sprintf(switchingProtocolsResponse, AcceptKey(key)), nil
}

// parseHeaders maps lower-cased header names to their trimmed values. The first line is the
// request or status line and is skipped.
func parseHeaders(block string) map[string]string {
	headers := make(map[string]string)
	lines := strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if i == 0 || line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	return headers
}

func headerHasToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// readHeaderBlock reads up to and including the blank line ending an HTTP header block. At most
// maxHandshakeHeader bytes plus one reader buffer are held, whatever the line lengths.
func readHeaderBlock(br *bufio.Reader) (string, error) {
	var block []byte
	start := 0
	for {
		part, err := br.ReadSlice('\n')
		block = append(block, part...)
		if len(block) > maxHandshakeHeader {
			return string(block), fmt.Errorf("%w: header block larger than %d bytes", domain.ErrHandshakeRejected, maxHandshakeHeader)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return string(block), err
		}

		line := string(block[start:])
		if line == "\r\n" || line == "\n" {
			return string(block), nil
		}
		start = len(block)
	}
}

// leftover returns bytes the bufio.Reader pulled past the header block; they already belong to frames.
func leftover(br *bufio.Reader) []byte {
	n := br.Buffered()
	if n == 0 {
		return nil
	}
	p, _ := br.Peek(n)
	return append([]byte(nil), p...)
}

// serverHandshake runs the server half of the upgrade on conn. On rejection a 400 response is written
// and the caller is expected to close conn.
func serverHandshake(conn net.Conn) ([]byte, error) {
	br := bufio.NewReaderSize(conn, bufferSize)
	request, err := readHeaderBlock(br)
	if err != nil {
		if errors.Is(err, domain.ErrHandshakeRejected) {
			_, _ = conn.Write([]byte(badRequestResponse))
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	response, err := Accept(request)
	if err != nil {
		_, _ = conn.Write([]byte(badRequestResponse))
		return nil, err
	}

	if _, err := conn.Write([]byte(response)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	return leftover(br), nil
}

// clientHandshake sends an upgrade request for host and path and verifies the server's accept key.
func clientHandshake(conn net.Conn, host, path string) ([]byte, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	key := base64.StdEncoding.EncodeToString(nonce)

	if path == "" {
		path = "/"
	}
	request := "GET " + path + " HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := conn.Write([]byte(request)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	br := bufio.NewReaderSize(conn, bufferSize)
	response, err := readHeaderBlock(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	status, _, _ := strings.Cut(response, "\n")
	if fields := strings.Fields(status); len(fields) < 2 || fields[1] != "101" {
		return nil, fmt.Errorf("%w: server answered %q", domain.ErrHandshakeRejected, strings.TrimSpace(status))
	}

	headers := parseHeaders(response)
	if headers["sec-websocket-accept"] != AcceptKey(key) {
		return nil, fmt.Errorf("%w: bad Sec-WebSocket-Accept", domain.ErrHandshakeRejected)
	}

	return leftover(br), nil
}
