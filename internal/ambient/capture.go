package ambient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/banshee-data/envsensor/internal/fsutil"
	"github.com/banshee-data/envsensor/internal/sysexec"
)

// ErrCapture wraps every failure to produce a snapshot.
var ErrCapture = errors.New("ambient capture failed")

// PathPlaceholder in CommandCapturer.Args is replaced with the output path.
const PathPlaceholder = "{path}"

// Capturer writes one snapshot image to path.
type Capturer interface {
	Capture(ctx context.Context, path string) error
}

// CommandCapturer runs an external camera tool, e.g. libcamera-jpeg -o {path}.
type CommandCapturer struct {
	Runner  sysexec.Runner
	Program string
	// Args may contain PathPlaceholder; if none does, the path is appended.
	Args []string
}

// NewCommandCapturer returns a capturer running libcamera-jpeg.
func NewCommandCapturer(runner sysexec.Runner) *CommandCapturer {
	return &CommandCapturer{
		Runner:  runner,
		Program: "libcamera-jpeg",
		Args:    []string{"-o", PathPlaceholder},
	}
}

func (c *CommandCapturer) Capture(ctx context.Context, path string) error {
	args := make([]string, 0, len(c.Args)+1)
	substituted := false
	for _, a := range c.Args {
		if strings.Contains(a, PathPlaceholder) {
			a = strings.ReplaceAll(a, PathPlaceholder, path)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, path)
	}

	if out, err := c.Runner.Run(ctx, c.Program, args...); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrCapture, err, strings.TrimSpace(out))
	}
	return nil
}

// SyntheticCapturer encodes a flat grey JPEG. It stands in for the camera in
// dev mode.
type SyntheticCapturer struct {
	FS     fsutil.FileSystem
	Level  uint8
	Width  int
	Height int
}

func (c *SyntheticCapturer) Capture(ctx context.Context, path string) error {
	w, h := c.Width, c.Height
	if w <= 0 {
		w = 64
	}
	if h <= 0 {
		h = 48
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = c.Level
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}
	if err := c.FS.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return nil
}
