package vision

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/pkg/faces"
)

// ErrNoFrame is returned when the stream yields no frame.
var ErrNoFrame = errors.New("vision: no frame")

// Capture reads frames from an RTSP stream or local device.
type Capture struct {
	clock clock.Clock

	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
	seq uint64
}

// OpenCapture opens url with OpenCV.
func OpenCapture(url string, clk clock.Clock) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", url, err)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Capture{clock: clk, cap: vc, mat: gocv.NewMat()}, nil
}

// Next reads and JPEG-encodes the next frame.
func (c *Capture) Next() (faces.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return faces.Frame{}, ErrNoFrame
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, c.mat)
	if err != nil {
		return faces.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	c.seq++
	data := append([]byte(nil), buf.GetBytes()...)
	return faces.Frame{Seq: c.seq, Time: c.clock.Now(), JPEG: data}, nil
}

// Close releases the stream.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mat.Close()
	return c.cap.Close()
}
