package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// startMux runs Monitor for the duration of the test.
func startMux(t *testing.T, port *TestableSerialPort) *SerialMux[*TestableSerialPort] {
	t.Helper()
	mux := NewSerialMux(port)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.Monitor(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		port.Close()
		<-done
	})
	return mux
}

func TestNewSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SerialMux subscribers map not initialized")
	}
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("subscription IDs must be unique and non-empty: %q %q", id1, id2)
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// unknown IDs are ignored
	mux.Unsubscribe("missing")

	mux.subscriberMu.Lock()
	n := len(mux.subscribers)
	mux.subscriberMu.Unlock()
	if n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
}

func TestSerialMux_SendCommandAppendsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.SendCommand("D"); err != nil {
		t.Fatalf("SendCommand error: %v", err)
	}
	if err := mux.SendCommand("I\n"); err != nil {
		t.Fatalf("SendCommand error: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "D\nI\n" {
		t.Errorf("written = %q, want %q", got, "D\nI\n")
	}
}

func TestSerialMux_SendCommandWriteError(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteError = errors.New("device unplugged")
	mux := NewSerialMux(port)

	err := mux.SendCommand("D")
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("got %v, want ErrWriteFailed", err)
	}
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewTestableSerialPort()
	mux := startMux(t, port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()
	port.AddReadData([]byte("hello\n"))

	for i, ch := range []chan string{ch1, ch2} {
		select {
		case line := <-ch:
			if line != "hello" {
				t.Errorf("subscriber %d got %q", i, line)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestSerialMux_Exchange(t *testing.T) {
	port := NewTestableSerialPort()
	port.OnWrite = func(line string) string {
		if line == "D" {
			return "\n{\"temperature\":20}\r\n"
		}
		return ""
	}
	mux := startMux(t, port)

	line, err := mux.Exchange(context.Background(), "D", time.Second)
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if line != `{"temperature":20}` {
		t.Errorf("got %q, want trimmed JSON line (blank lines skipped)", line)
	}
}

func TestSerialMux_ExchangeTimeout(t *testing.T) {
	port := NewTestableSerialPort()
	mux := startMux(t, port)

	start := time.Now()
	_, err := mux.Exchange(context.Background(), "D", 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Exchange returned before the timeout")
	}
}

func TestSerialMux_ExchangeContextCancelled(t *testing.T) {
	port := NewTestableSerialPort()
	mux := startMux(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mux.Exchange(ctx, "D", time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSerialMux_ExchangeAfterMonitorStops(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()
	<-done

	if _, err := mux.Exchange(context.Background(), "D", time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	port.Close()
}

func TestSerialMux_MonitorReturnsOnPortClose(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	port.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error when the port closes underneath Monitor")
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after port close")
	}
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.Closed {
		t.Error("port should be closed")
	}
}

func TestSerialMux_SendCommandAPI(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	form := url.Values{"command": {"D"}}
	req := httptest.NewRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if string(port.GetWrittenData()) != "D\n" {
		t.Errorf("written = %q", port.GetWrittenData())
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/send-command-api", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}
