package serialmux

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// Responder produces the device's reply to one command line. Returning false
// simulates a device that stays silent.
type Responder func(command string) (reply string, ok bool)

// MockSerialPort implements SerialPorter by answering each newline-terminated
// command written to it with the Responder's reply. It backs --dev mode.
type MockSerialPort struct {
	respond Responder
	r       *io.PipeReader
	w       *io.PipeWriter
	pending bytes.Buffer
	mu      sync.Mutex
}

// NewMockSerialPort returns a port that answers commands using respond.
func NewMockSerialPort(respond Responder) *MockSerialPort {
	r, w := io.Pipe()
	return &MockSerialPort{respond: respond, r: r, w: w}
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	m.pending.Write(p)
	var replies []string
	for {
		line, err := m.pending.ReadString('\n')
		if err != nil {
			// keep the partial command for the next write
			m.pending.Reset()
			m.pending.WriteString(line)
			break
		}
		if reply, ok := m.respond(strings.TrimSpace(line)); ok {
			replies = append(replies, reply)
		}
	}
	m.mu.Unlock()

	// the pipe blocks until Monitor reads, so reply off the caller's goroutine
	if len(replies) > 0 {
		go func() {
			for _, reply := range replies {
				if _, err := io.WriteString(m.w, reply+"\n"); err != nil {
					return
				}
			}
		}()
	}
	return len(p), nil
}

func (m *MockSerialPort) Close() error {
	m.w.Close()
	return m.r.Close()
}

// NewMockSerialMux creates a SerialMux instance backed by a mock serial port.
func NewMockSerialMux(respond Responder) *SerialMux[*MockSerialPort] {
	return NewSerialMux(NewMockSerialPort(respond))
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and latency.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// OnWrite, if set, is called with each written command line; its return
	// value is queued as read data, simulating a device reply.
	OnWrite func(line string) string

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing. Reads
// block until data is queued or the port is closed.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read blocks until data is available or the port is closed.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.Closed && t.ReadBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	return t.ReadBuffer.Read(p)
}

// Write records data and, when OnWrite is set, queues its reply for reading.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	n, err := t.WriteBuffer.Write(p)
	if t.OnWrite != nil {
		scan := bufio.NewScanner(bytes.NewReader(p))
		for scan.Scan() {
			if reply := t.OnWrite(scan.Text()); reply != "" {
				t.ReadBuffer.WriteString(reply)
			}
		}
		t.readCond.Broadcast()
	}
	return n, err
}

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}
