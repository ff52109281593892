package vision

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-doorbell/pkg/faces"
)

// identity is one gallery entry.
type identity struct {
	name    string
	feature gocv.Mat
}

// Recognizer detects faces with YuNet and names them with SFace.
type Recognizer struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex // protects inference
	detector gocv.FaceDetectorYN
	sface    gocv.FaceRecognizerSF
	gallery  []identity
}

// NewRecognizer loads both models and the known-faces gallery.
func NewRecognizer(cfg Config, logger *slog.Logger) (*Recognizer, error) {
	for _, p := range []string{cfg.DetectorModel, cfg.RecognizerModel} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", p)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recognizer{
		cfg:    cfg,
		logger: logger.With("component", "vision"),
		detector: gocv.NewFaceDetectorYNWithParams(
			cfg.DetectorModel,
			"",
			image.Pt(320, 320),
			float32(cfg.ScoreThreshold),
			0.3,
			5000,
			int(gocv.NetBackendDefault),
			int(gocv.NetTargetCPU),
		),
		sface: gocv.NewFaceRecognizerSF(cfg.RecognizerModel, ""),
	}

	if err := r.loadGallery(cfg.KnownDir); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// loadGallery embeds the first face of every image in dir, named after
// the file.
func (r *Recognizer) loadGallery(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn("known faces directory missing, every face is unknown", "dir", dir)
			return nil
		}
		return fmt.Errorf("read known faces: %w", err)
	}

	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".jpg" && ext != ".jpeg" && ext != ".png") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))

		img := gocv.IMRead(filepath.Join(dir, e.Name()), gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			r.logger.Warn("unreadable known face", "file", e.Name())
			continue
		}
		feature, ok := r.embedFirst(img)
		img.Close()
		if !ok {
			r.logger.Warn("no face found in known face image", "file", e.Name())
			continue
		}
		r.gallery = append(r.gallery, identity{name: name, feature: feature})
		r.logger.Info("loaded known face", "name", name)
	}
	return nil
}

func (r *Recognizer) embedFirst(img gocv.Mat) (gocv.Mat, bool) {
	r.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	found := gocv.NewMat()
	defer found.Close()
	r.detector.Detect(img, &found)
	if found.Rows() == 0 {
		return gocv.Mat{}, false
	}
	face := found.Row(0)
	defer face.Close()
	return r.embed(img, face), true
}

// embed returns an owned SFace feature for one YuNet face row.
func (r *Recognizer) embed(img, face gocv.Mat) gocv.Mat {
	aligned := gocv.NewMat()
	defer aligned.Close()
	r.sface.AlignCrop(img, face, &aligned)

	feature := gocv.NewMat()
	defer feature.Close()
	r.sface.Feature(aligned, &feature)
	return feature.Clone()
}

// Known returns the gallery size.
func (r *Recognizer) Known() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gallery)
}

// Detect finds and identifies faces in a JPEG frame.
func (r *Recognizer) Detect(jpeg []byte) ([]Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	r.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	found := gocv.NewMat()
	defer found.Close()
	r.detector.Detect(img, &found)

	var out []Face
	for row := 0; row < found.Rows(); row++ {
		// YuNet rows: x, y, w, h, five landmark pairs, score.
		x := int(found.GetFloatAt(row, 0))
		y := int(found.GetFloatAt(row, 1))
		w := int(found.GetFloatAt(row, 2))
		h := int(found.GetFloatAt(row, 3))
		face := Face{
			Box:   image.Rect(x, y, x+w, y+h),
			Score: float64(found.GetFloatAt(row, 14)),
			Name:  faces.Unknown,
		}

		faceRow := found.Row(row)
		feature := r.embed(img, faceRow)
		faceRow.Close()
		face.Name, face.Similarity = r.match(feature)
		feature.Close()

		out = append(out, face)
	}
	return out, nil
}

// match returns the best gallery identity above the threshold.
func (r *Recognizer) match(feature gocv.Mat) (string, float64) {
	name, best := faces.Unknown, -1.0
	for _, id := range r.gallery {
		score := float64(r.sface.MatchWithParams(feature, id.feature, gocv.FaceRecognizerSFDisTypeCosine))
		if score > best {
			best = score
			if score >= r.cfg.MatchThreshold {
				name = id.name
			}
		}
	}
	return name, best
}

// Close releases the models and gallery.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.gallery {
		id.feature.Close()
	}
	r.gallery = nil
	r.detector.Close()
	r.sface.Close()
	return nil
}
