package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/envsensor/internal/sensor"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *doneToken) Wait() bool {
	<-t.done
	return true
}

func (t *doneToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *doneToken) Done() <-chan struct{} { return t.done }
func (t *doneToken) Error() error          { return t.err }

// fakeClient implements just the mqtt.Client methods the publisher uses.
type fakeClient struct {
	mqtt.Client

	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	published  []published
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = f.connectErr == nil
	return newToken(f.connectErr, true)
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(f.publishErr, true)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTopic(t *testing.T) {
	assert.Equal(t, "sensors/hostel-1/reading", Topic("hostel-1"))
	assert.Equal(t, "sensors/room_4/reading", Topic("room 4/#"))
}

func TestPublisher_Record(t *testing.T) {
	client := &fakeClient{}
	p := newPublisherWithClient(client, "hostel-1", quietLogger())
	require.NoError(t, p.Connect(context.Background()))

	camera := 42.0
	ts := time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC)
	r := sensor.NewReading(sensor.RawReading{Temperature: 23.5, Humidity: 48, Pressure: 1002, Altitude: 80, Light: 220}, &camera, ts)
	require.NoError(t, p.Record(context.Background(), r))

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "sensors/hostel-1/reading", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var got Message
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "hostel-1", got.Station)
	assert.Equal(t, 23.5, got.Temperature)
	require.NotNil(t, got.CameraLight)
	assert.Equal(t, 42.0, *got.CameraLight)
	assert.True(t, ts.Equal(got.Timestamp))
}

func TestPublisher_RecordWhileDisconnected(t *testing.T) {
	client := &fakeClient{}
	p := newPublisherWithClient(client, "s", quietLogger())

	err := p.Record(context.Background(), sensor.Reading{})
	assert.ErrorContains(t, err, "not connected")
	assert.Empty(t, client.published)
}

func TestPublisher_PublishError(t *testing.T) {
	boom := errors.New("broker rejected")
	client := &fakeClient{publishErr: boom}
	p := newPublisherWithClient(client, "s", quietLogger())
	require.NoError(t, p.Connect(context.Background()))

	assert.ErrorIs(t, p.Record(context.Background(), sensor.Reading{}), boom)
}

func TestPublisher_ConnectError(t *testing.T) {
	boom := errors.New("refused")
	p := newPublisherWithClient(&fakeClient{connectErr: boom}, "s", quietLogger())
	assert.ErrorIs(t, p.Connect(context.Background()), boom)
	assert.False(t, p.IsConnected())
}

func TestPublisher_DisconnectStops(t *testing.T) {
	p := newPublisherWithClient(&fakeClient{}, "s", quietLogger())
	require.NoError(t, p.Connect(context.Background()))

	p.Disconnect()
	p.Disconnect()
	assert.False(t, p.IsConnected())
	assert.ErrorContains(t, p.Connect(context.Background()), "stopped")
}

func TestNewMessage_OmitsAbsentCamera(t *testing.T) {
	data, err := json.Marshal(NewMessage("s", sensor.Reading{Temperature: 1}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "camera_light")
}

func TestNewPublisher_DoesNotConnect(t *testing.T) {
	p := NewPublisher(Config{Broker: "tcp://127.0.0.1:1", Station: "s"}, quietLogger())
	assert.False(t, p.IsConnected())
	assert.Error(t, p.Record(context.Background(), sensor.Reading{}))
}
