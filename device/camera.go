package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maastricht-university/truth-detector/config"
)

const maxFrameBytes = 8 << 20

// Camera streams MJPEG frames from an ffmpeg capture process.
type Camera struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer

	frames chan Frame
	done   chan struct{}
	err    error

	once     sync.Once
	closeErr error
}

// OpenCamera starts capturing and waits for the first frame.
func OpenCamera(ctx context.Context, v config.Video) (*Camera, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", v.Format}
	if v.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(v.FPS))
	}
	if v.Width > 0 && v.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", v.Width, v.Height))
	}
	args = append(args, "-i", v.Device, "-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "5", "-")

	cmd := exec.Command(FFmpegBin, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	c := &Camera{cmd: cmd}
	cmd.Stderr = &c.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start camera %s: %v", ErrUnavailable, v.Device, err)
	}
	c.pump(out)

	wait := config.DurSeconds(v.OpenTimeoutSec)
	if wait <= 0 {
		wait = 5 * time.Second
	}
	octx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	first, err := c.Read(octx)
	if err != nil {
		_ = c.Close()
		msg := strings.TrimSpace(c.stderr.String())
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if msg != "" {
			return nil, fmt.Errorf("camera %s: %w (%s)", v.Device, err, msg)
		}
		return nil, fmt.Errorf("camera %s: %w", v.Device, err)
	}
	// Hand the first frame back unless a newer one already arrived.
	select {
	case c.frames <- first:
	default:
	}
	return c, nil
}

func newStream(r io.Reader) *Camera {
	c := &Camera{}
	c.pump(r)
	return c
}

func (c *Camera) pump(r io.Reader) {
	c.frames = make(chan Frame, 1)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 256<<10), maxFrameBytes)
		sc.Split(SplitJPEG)
		for sc.Scan() {
			data := append([]byte(nil), sc.Bytes()...)
			c.push(Frame{Data: data, At: time.Now()})
		}
		c.err = sc.Err()
	}()
}

// push keeps only the newest frame.
func (c *Camera) push(f Frame) {
	for {
		select {
		case c.frames <- f:
			return
		default:
		}
		select {
		case <-c.frames:
		default:
		}
	}
}

// Read returns the newest frame, waiting for one if none is buffered.
func (c *Camera) Read(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		select {
		case f := <-c.frames:
			return f, nil
		default:
		}
		if c.err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrUnavailable, c.err)
		}
		return Frame{}, fmt.Errorf("%w: stream ended", ErrUnavailable)
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close stops the capture process and releases the device.
func (c *Camera) Close() error {
	c.once.Do(func() {
		if c.cmd == nil || c.cmd.Process == nil {
			return
		}
		_ = c.cmd.Process.Kill()
		// drain the pipe reader before Wait closes it
		<-c.done
		err := c.cmd.Wait()
		var exit *exec.ExitError
		if err != nil && !errors.As(err, &exit) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// SplitJPEG is a bufio.SplitFunc that yields whole JPEG images (SOI..EOI)
// from a concatenated MJPEG stream. Bytes before an SOI marker are dropped.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte{0xff, 0xd8})
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xff that may start the next marker.
		if n := len(data); n > 0 && data[n-1] == 0xff {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+2:], []byte{0xff, 0xd9})
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}
