package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/envsensor/internal/serialmux"
)

// ReadCommand is the single-line request that asks the board for a reading.
const ReadCommand = "D"

// DefaultTimeout bounds how long Poll waits for a reply line.
const DefaultTimeout = 5 * time.Second

// requiredKeys must all be present and numeric in a reply.
var requiredKeys = []string{"temperature", "humidity", "pressure", "altitude", "light"}

// Exchanger sends one command line and returns the next non-empty reply line.
// *serialmux.SerialMux satisfies it.
type Exchanger interface {
	Exchange(ctx context.Context, command string, timeout time.Duration) (string, error)
}

// Client polls the sensor board. It holds no reading state of its own.
type Client struct {
	port    Exchanger
	timeout time.Duration
}

// NewClient returns a Client using timeout per exchange; a non-positive
// timeout selects DefaultTimeout.
func NewClient(port Exchanger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{port: port, timeout: timeout}
}

// Poll performs one request/response exchange. Failures are returned as
// *CommError except context cancellation, which is returned as is.
func (c *Client) Poll(ctx context.Context) (RawReading, error) {
	line, err := c.port.Exchange(ctx, ReadCommand, c.timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RawReading{}, ctxErr
		}
		return RawReading{}, &CommError{Kind: transportKind(err), Err: err}
	}
	return ParseResponse(line)
}

func transportKind(err error) ErrorKind {
	switch {
	case errors.Is(err, serialmux.ErrTimeout):
		return KindTimeout
	case errors.Is(err, serialmux.ErrWriteFailed):
		return KindWrite
	default:
		return KindClosed
	}
}

// ParseResponse decodes one framed reply line.
func ParseResponse(line string) (RawReading, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '{' || line[len(line)-1] != '}' {
		return RawReading{}, &CommError{Kind: KindFraming, Err: fmt.Errorf("reply %q is not a JSON object", line)}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return RawReading{}, &CommError{Kind: KindParse, Err: err}
	}

	values := make(map[string]float64, len(requiredKeys))
	for _, key := range requiredKeys {
		v, ok := fields[key]
		if !ok {
			return RawReading{}, &CommError{Kind: KindParse, Err: fmt.Errorf("missing key %q", key)}
		}
		f, ok := v.(float64)
		if !ok {
			return RawReading{}, &CommError{Kind: KindParse, Err: fmt.Errorf("key %q is %T, not a number", key, v)}
		}
		values[key] = f
	}

	return RawReading{
		Temperature: values["temperature"],
		Humidity:    values["humidity"],
		Pressure:    values["pressure"],
		Altitude:    values["altitude"],
		Light:       values["light"],
	}, nil
}
