// Package pgtest implements a minimal PostgreSQL wire-protocol v3 server
// used only by tests: it completes unauthenticated startup and answers
// every simple query with a fixed CommandComplete tag, enough to exercise
// conn/pool/txn/router code paths without a real database.
package pgtest

import (
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// FakeServer accepts connections and speaks just enough of the protocol to
// complete startup and answer simple queries.
type FakeServer struct {
	ln    net.Listener
	tag   string
	ready chan net.Conn

	mu         sync.Mutex
	errorOn    string // substring of the query text that triggers ErrorResponse instead of success
	errorState string // SQLSTATE to report for errorOn; defaults to a generic non-fatal code
}

// Start listens on an ephemeral local port and begins accepting
// connections in the background. tag is the CommandComplete tag returned
// for every simple query (e.g. "SELECT 1").
func Start(tag string) (*FakeServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &FakeServer{ln: ln, tag: tag, ready: make(chan net.Conn, 1)}
	go s.acceptLoop()
	return s, nil
}

// FailQueriesContaining makes every subsequent query whose text contains
// substr fail with an ErrorResponse carrying sqlState, instead of the usual
// row/CommandComplete reply. An empty sqlState reports a generic, non-fatal
// syntax-error code.
func (s *FakeServer) FailQueriesContaining(substr, sqlState string) {
	if sqlState == "" {
		sqlState = "42601" // syntax_error: plain SQL error, not connection-fatal
	}
	s.mu.Lock()
	s.errorOn, s.errorState = substr, sqlState
	s.mu.Unlock()
}

func (s *FakeServer) errorTrigger() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorOn, s.errorState
}

// WaitReady blocks until the first client has completed startup, returning
// its raw net.Conn so a test can push protocol frames (e.g. a
// NotificationResponse) directly, out of band from the normal query loop.
func (s *FakeServer) WaitReady(timeout time.Duration) (net.Conn, bool) {
	select {
	case c := <-s.ready:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// SendNotification writes a raw NotificationResponse frame to c.
func (s *FakeServer) SendNotification(c net.Conn, channel, payload string, pid uint32) bool {
	return writeNotification(c, channel, payload, pid)
}

// Addr is the "host:port" string to dial.
func (s *FakeServer) Addr() string { return s.ln.Addr().String() }

// Host and Port split Addr for callers building a wire.Endpoint.
func (s *FakeServer) HostPort() (string, string) {
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	return host, port
}

// Close stops accepting new connections.
func (s *FakeServer) Close() error { return s.ln.Close() }

func (s *FakeServer) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(c)
	}
}

func (s *FakeServer) serve(c net.Conn) {
	defer c.Close()
	if !readStartup(c) {
		return
	}
	if !writeAuthOK(c) || !writeReadyForQuery(c) {
		return
	}
	select {
	case s.ready <- c:
	default:
	}
	for {
		typ, payload, err := readMessage(c)
		if err != nil {
			return
		}
		switch typ {
		case 'Q':
			text := queryText(payload)
			errorOn, errorState := s.errorTrigger()
			switch {
			case errorOn != "" && strings.Contains(strings.ToUpper(text), strings.ToUpper(errorOn)):
				if !writeErrorResponse(c, errorState, "fake server: simulated query error") {
					return
				}
				if !writeReadyForQuery(c) {
					return
				}
			case isCopyFromStdin(text):
				if !writeCopyInResponse(c) {
					return
				}
				if !s.drainCopyIn(c) {
					return
				}
			case isCopyToStdout(text):
				if !writeCopyOutResponse(c) {
					return
				}
				if !writeCopyData(c, "0,0") || !writeCopyDone(c) {
					return
				}
				if !writeCommandComplete(c, "COPY 1") || !writeReadyForQuery(c) {
					return
				}
			default:
				if !writeRowDescription(c, []string{"col1", "col2"}) {
					return
				}
				if !writeDataRow(c, []string{"0", "0"}) {
					return
				}
				if !writeCommandComplete(c, s.tag) || !writeReadyForQuery(c) {
					return
				}
			}
		case 'S': // extended-query Sync: reply the same way as a simple query
			if !writeRowDescription(c, []string{"col1", "col2"}) {
				return
			}
			if !writeDataRow(c, []string{"0", "0"}) {
				return
			}
			if !writeCommandComplete(c, s.tag) || !writeReadyForQuery(c) {
				return
			}
		case 'X':
			return
		}
	}
}

func queryText(payload []byte) string {
	return strings.TrimRight(string(payload), "\x00")
}

func isCopyFromStdin(text string) bool {
	u := strings.ToUpper(text)
	return strings.HasPrefix(u, "COPY") && strings.Contains(u, "FROM STDIN")
}

func isCopyToStdout(text string) bool {
	u := strings.ToUpper(text)
	return strings.HasPrefix(u, "COPY") && strings.Contains(u, "TO STDOUT")
}

// drainCopyIn reads CopyData frames until CopyDone, then answers with
// CommandComplete/ReadyForQuery, just enough to let a test drive a full
// CopyIn round trip.
func (s *FakeServer) drainCopyIn(c net.Conn) bool {
	for {
		typ, _, err := readMessage(c)
		if err != nil {
			return false
		}
		switch typ {
		case 'd': // CopyData
			continue
		case 'c': // CopyDone
			ok := writeCommandComplete(c, "COPY 1") && writeReadyForQuery(c)
			// the client always follows CopyDone with a Sync frame; drain it so
			// the next serve() loop iteration doesn't misread it as a new query.
			readMessage(c)
			return ok
		case 'f': // CopyFail
			return writeCommandComplete(c, "COPY 0") && writeReadyForQuery(c)
		}
	}
}

func readStartup(c net.Conn) bool {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c, lenBuf[:]); err != nil {
		return false
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total < 4 {
		return false
	}
	rest := make([]byte, total-4)
	_, err := io.ReadFull(c, rest)
	return err == nil
}

func readMessage(c net.Conn) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(c, header[:]); err != nil {
		return 0, nil, err
	}
	typ := header[0]
	total := binary.BigEndian.Uint32(header[1:])
	if total < 4 {
		return typ, nil, nil
	}
	payload := make([]byte, total-4)
	if _, err := io.ReadFull(c, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}

func writeAuthOK(c net.Conn) bool {
	buf := make([]byte, 0, 9)
	buf = append(buf, 'R')
	buf = binary.BigEndian.AppendUint32(buf, 8)
	buf = binary.BigEndian.AppendUint32(buf, 0)
	_, err := c.Write(buf)
	return err == nil
}

func writeReadyForQuery(c net.Conn) bool {
	buf := []byte{'Z', 0, 0, 0, 5, 'I'}
	_, err := c.Write(buf)
	return err == nil
}

func writeRowDescription(c net.Conn, cols []string) bool {
	var payload []byte
	payload = binary.BigEndian.AppendUint16(payload, uint16(len(cols)))
	for _, name := range cols {
		payload = append(payload, name...)
		payload = append(payload, 0)
		payload = binary.BigEndian.AppendUint32(payload, 0) // table OID
		payload = binary.BigEndian.AppendUint16(payload, 0) // column attr num
		payload = binary.BigEndian.AppendUint32(payload, 25) // type OID (text)
		payload = binary.BigEndian.AppendUint16(payload, 0xffff) // type len (-1, variable)
		payload = binary.BigEndian.AppendUint32(payload, 0) // type modifier
		payload = binary.BigEndian.AppendUint16(payload, 0) // format code (text)
	}
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, 'T')
	buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(payload)))
	buf = append(buf, payload...)
	_, err := c.Write(buf)
	return err == nil
}

func writeDataRow(c net.Conn, values []string) bool {
	var payload []byte
	payload = binary.BigEndian.AppendUint16(payload, uint16(len(values)))
	for _, v := range values {
		payload = binary.BigEndian.AppendUint32(payload, uint32(len(v)))
		payload = append(payload, v...)
	}
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, 'D')
	buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(payload)))
	buf = append(buf, payload...)
	_, err := c.Write(buf)
	return err == nil
}

func writeErrorResponse(c net.Conn, sqlState, message string) bool {
	var payload []byte
	payload = append(payload, 'S')
	payload = append(payload, "ERROR"...)
	payload = append(payload, 0)
	payload = append(payload, 'C')
	payload = append(payload, sqlState...)
	payload = append(payload, 0)
	payload = append(payload, 'M')
	payload = append(payload, message...)
	payload = append(payload, 0)
	payload = append(payload, 0) // terminator
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, 'E')
	buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(payload)))
	buf = append(buf, payload...)
	_, err := c.Write(buf)
	return err == nil
}

func writeNotification(c net.Conn, channel, payload string, pid uint32) bool {
	var body []byte
	body = binary.BigEndian.AppendUint32(body, pid)
	body = append(body, channel...)
	body = append(body, 0)
	body = append(body, payload...)
	body = append(body, 0)
	buf := make([]byte, 0, 5+len(body))
	buf = append(buf, 'A')
	buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(body)))
	buf = append(buf, body...)
	_, err := c.Write(buf)
	return err == nil
}

func writeCommandComplete(c net.Conn, tag string) bool {
	buf := make([]byte, 0, 5+len(tag)+1)
	buf = append(buf, 'C')
	buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(tag)+1))
	buf = append(buf, tag...)
	buf = append(buf, 0)
	_, err := c.Write(buf)
	return err == nil
}

func writeCopyInResponse(c net.Conn) bool {
	buf := []byte{'G', 0, 0, 0, 7, 0, 0, 0}
	_, err := c.Write(buf)
	return err == nil
}

func writeCopyOutResponse(c net.Conn) bool {
	buf := []byte{'H', 0, 0, 0, 7, 0, 0, 0}
	_, err := c.Write(buf)
	return err == nil
}

func writeCopyData(c net.Conn, data string) bool {
	buf := make([]byte, 0, 5+len(data))
	buf = append(buf, 'd')
	buf = binary.BigEndian.AppendUint32(buf, uint32(4+len(data)))
	buf = append(buf, data...)
	_, err := c.Write(buf)
	return err == nil
}

func writeCopyDone(c net.Conn) bool {
	buf := []byte{'c', 0, 0, 0, 4}
	_, err := c.Write(buf)
	return err == nil
}
