package device

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// ImageFile serves one still image as an endless stream.
type ImageFile struct {
	data   []byte
	closed atomic.Bool
}

func OpenImageFile(path string) (*ImageFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &ImageFile{data: b}, nil
}

func (s *ImageFile) Read(ctx context.Context) (Frame, error) {
	if s.closed.Load() {
		return Frame{}, fmt.Errorf("%w: source closed", ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{Data: s.data, At: time.Now()}, nil
}

func (s *ImageFile) Close() error {
	s.closed.Store(true)
	return nil
}
