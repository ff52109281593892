package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-doorbell/pkg/faces"
)

// ClipWriter encodes frame buffers as MJPG AVI files.
type ClipWriter struct{}

// WriteClip writes frames to path. The clip takes the size of the first
// decodable frame; frames of another size are skipped.
func (ClipWriter) WriteClip(path string, frames []faces.Frame, fps int) error {
	var (
		writer *gocv.VideoWriter
		width  int
		height int
		wrote  int
	)
	defer func() {
		if writer != nil {
			writer.Close()
		}
	}()

	for _, f := range frames {
		img, err := gocv.IMDecode(f.JPEG, gocv.IMReadColor)
		if err != nil {
			continue
		}
		if img.Empty() {
			img.Close()
			continue
		}

		if writer == nil {
			width, height = img.Cols(), img.Rows()
			writer, err = gocv.VideoWriterFile(path, "MJPG", float64(fps), width, height, true)
			if err != nil {
				img.Close()
				return fmt.Errorf("open clip %s: %w", path, err)
			}
		}
		if img.Cols() == width && img.Rows() == height {
			if err := writer.Write(img); err != nil {
				img.Close()
				return fmt.Errorf("write clip %s: %w", path, err)
			}
			wrote++
		}
		img.Close()
	}

	if wrote == 0 {
		return errors.New("vision: no decodable frames")
	}
	return nil
}

var _ faces.ClipWriter = ClipWriter{}
