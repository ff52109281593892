// Package vision is the OpenCV side of the doorbell camera path. It reads
// the RTSP stream, finds and names faces, and encodes clips.
package vision

import "image"

// Face is one detected and identified face.
type Face struct {
	Box        image.Rectangle
	Score      float64 // detector confidence
	Name       string  // gallery name or "Unknown"
	Similarity float64 // cosine similarity of the best gallery match
}

// Names returns the identity of each face.
func Names(found []Face) []string {
	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.Name
	}
	return names
}

// Config holds model paths and thresholds.
type Config struct {
	DetectorModel   string
	RecognizerModel string
	KnownDir        string

	// ScoreThreshold is the minimum detector confidence.
	ScoreThreshold float64

	// MatchThreshold is the minimum cosine similarity for a gallery match.
	MatchThreshold float64
}

// DefaultConfig returns the OpenCV zoo models and SFace's recommended
// cosine threshold.
func DefaultConfig() Config {
	return Config{
		DetectorModel:   "models/face_detection_yunet_2023mar.onnx",
		RecognizerModel: "models/face_recognition_sface_2021dec.onnx",
		KnownDir:        "known_faces",
		ScoreThreshold:  0.8,
		MatchThreshold:  0.363,
	}
}
