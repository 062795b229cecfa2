package facetrack

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// ErrCameraClosed is returned by Read after the camera is released.
var ErrCameraClosed = errors.New("facetrack: camera closed")

// Frame capture defaults. 640x480 keeps detection latency low on small boards.
const (
	captureWidth  = 640
	captureHeight = 480
)

// Source supplies JPEG frames with their pixel dimensions. Satisfied by
// Camera and by test fakes.
type Source interface {
	Read() (jpeg []byte, width, height int, err error)
	Close() error
}

// Camera captures frames from a local video device via OpenCV.
type Camera struct {
	mu  sync.Mutex
	cap *gocv.VideoCapture
}

var _ Source = (*Camera)(nil)

// OpenCamera opens the video device at the given index and applies the
// capture resolution.
func OpenCamera(index int) (*Camera, error) {
	cap, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("facetrack: open camera %d: %w", index, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("facetrack: camera %d did not open", index)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, captureWidth)
	cap.Set(gocv.VideoCaptureFrameHeight, captureHeight)

	return &Camera{cap: cap}, nil
}

// Read grabs one frame and returns it JPEG-encoded with its dimensions.
func (c *Camera) Read() ([]byte, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil, 0, 0, ErrCameraClosed
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := c.cap.Read(&img); !ok || img.Empty() {
		return nil, 0, 0, fmt.Errorf("facetrack: frame read failed")
	}

	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("facetrack: encode frame: %w", err)
	}
	defer buf.Close()

	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())

	return jpeg, img.Cols(), img.Rows(), nil
}

// Close releases the video device. Safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	return err
}
