package ambient

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/envsensor/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name string
	args []string
	out  string
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.name, f.args = name, args
	return f.out, f.err
}

func TestCommandCapturer_SubstitutesPath(t *testing.T) {
	r := &fakeRunner{}
	c := NewCommandCapturer(r)

	require.NoError(t, c.Capture(context.Background(), "/tmp/snap.jpg"))
	assert.Equal(t, "libcamera-jpeg", r.name)
	assert.Equal(t, []string{"-o", "/tmp/snap.jpg"}, r.args)
}

func TestCommandCapturer_AppendsPathWithoutPlaceholder(t *testing.T) {
	r := &fakeRunner{}
	c := &CommandCapturer{Runner: r, Program: "fswebcam", Args: []string{"--no-banner"}}

	require.NoError(t, c.Capture(context.Background(), "/tmp/snap.jpg"))
	assert.Equal(t, []string{"--no-banner", "/tmp/snap.jpg"}, r.args)
}

func TestCommandCapturer_Failure(t *testing.T) {
	r := &fakeRunner{out: "no cameras available\n", err: errors.New("exit status 255")}
	err := NewCommandCapturer(r).Capture(context.Background(), "/tmp/snap.jpg")

	require.ErrorIs(t, err, ErrCapture)
	assert.Contains(t, err.Error(), "no cameras available")
}

func TestSyntheticCapturer(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	c := &SyntheticCapturer{FS: fs, Level: 128}

	require.NoError(t, c.Capture(context.Background(), "/snap.jpg"))
	data, err := fs.ReadFile("/snap.jpg")
	require.NoError(t, err)

	v, err := MeanBrightness(data)
	require.NoError(t, err)
	assert.InDelta(t, 128.0, v, 1.5)
}
