package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/envsensor/internal/serialmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	reply   string
	err     error
	command string
	timeout time.Duration
}

func (f *fakeExchanger) Exchange(ctx context.Context, command string, timeout time.Duration) (string, error) {
	f.command = command
	f.timeout = timeout
	return f.reply, f.err
}

func TestClientPoll_Success(t *testing.T) {
	ex := &fakeExchanger{reply: `{"temperature": 22.1, "humidity": 55, "pressure": 1001.5, "altitude": 90.2, "light": 410, "firmware": "v2"}`}
	c := NewClient(ex, 0)

	raw, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RawReading{Temperature: 22.1, Humidity: 55, Pressure: 1001.5, Altitude: 90.2, Light: 410}, raw)
	assert.Equal(t, ReadCommand, ex.command)
	assert.Equal(t, DefaultTimeout, ex.timeout)
}

func TestClientPoll_TransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"timeout", serialmux.ErrTimeout, KindTimeout},
		{"write", errors.Join(serialmux.ErrWriteFailed, errors.New("eio")), KindWrite},
		{"closed", serialmux.ErrClosed, KindClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(&fakeExchanger{err: tt.err}, time.Second)
			_, err := c.Poll(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
			assert.NotErrorIs(t, err, ErrProtocolFormat)
			assert.ErrorIs(t, err, tt.err)

			var ce *CommError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
		})
	}
}

func TestClientPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(&fakeExchanger{err: context.Canceled}, time.Second)

	_, err := c.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	var ce *CommError
	assert.False(t, errors.As(err, &ce), "cancellation is not a comm failure")
}

func TestParseResponse_FormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		kind  ErrorKind
	}{
		{"not json", "hello", KindFraming},
		{"unterminated", `{"temperature": 1`, KindFraming},
		{"array", `[1,2,3]`, KindFraming},
		{"bad json inside braces", `{temperature: 1}`, KindParse},
		{"missing key", `{"temperature":1,"humidity":2,"pressure":3,"altitude":4}`, KindParse},
		{"non numeric", `{"temperature":"hot","humidity":2,"pressure":3,"altitude":4,"light":5}`, KindParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.reply)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProtocolFormat)
			assert.NotErrorIs(t, err, ErrTransport)

			var ce *CommError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
		})
	}
}

func TestClientPoll_OverSerialMux(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.OnWrite = func(line string) string {
		if line == ReadCommand {
			return `{"temperature":19,"humidity":60,"pressure":990,"altitude":150,"light":12}` + "\n"
		}
		return ""
	}
	mux := serialmux.NewSerialMux(port)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.Monitor(ctx)
	}()
	defer func() {
		cancel()
		port.Close()
		<-done
	}()

	raw, err := NewClient(mux, time.Second).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 19.0, raw.Temperature)
	assert.Equal(t, 12.0, raw.Light)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "parse", KindParse.String())
	assert.Equal(t, "ErrorKind(42)", ErrorKind(42).String())
}
