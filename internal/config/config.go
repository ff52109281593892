// Package config loads go-doorbell configuration from an optional YAML
// file and environment variables, then validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telephony TelephonyConfig `yaml:"telephony"`
	Doorbell  DoorbellConfig  `yaml:"doorbell"`
	Pushover  PushoverConfig  `yaml:"pushover"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Piper     PiperConfig     `yaml:"piper"`
	Vosk      VoskConfig      `yaml:"vosk"`
	Audio     AudioConfig     `yaml:"audio"`
	Proximity ProximityConfig `yaml:"proximity"`
	Camera    CameraConfig    `yaml:"camera"`
	Faces     FacesConfig     `yaml:"faces"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
}

// HTTPConfig is the listen address of the proximity/status server.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// TelephonyConfig points at the baresip control socket. The SIP
// account fields are passed through to the status API only; baresip
// owns registration.
type TelephonyConfig struct {
	ControlAddr string `yaml:"control_addr" validate:"required,hostname_port"`
	Domain      string `yaml:"domain"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	ListenPort  int    `yaml:"listen_port" validate:"min=1,max=65535"`
}

// DoorbellConfig describes the intercom HTTP relay API.
type DoorbellConfig struct {
	Scheme     string        `yaml:"scheme" validate:"oneof=http https"`
	Host       string        `yaml:"host" validate:"required,hostname|ip"`
	Port       int           `yaml:"port" validate:"min=1,max=65535"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	DoorRelay  int           `yaml:"door_relay" validate:"min=1"`
	LightRelay int           `yaml:"light_relay" validate:"min=1"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0s"`
}

// PushoverConfig holds Pushover credentials. Both or neither must be set.
type PushoverConfig struct {
	User  string `yaml:"user" validate:"required_with=Token"`
	Token string `yaml:"token" validate:"required_with=User"`
}

// WebhookConfig is an optional JSON webhook notified alongside Pushover.
type WebhookConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// PiperConfig locates the Piper TTS binary and voice model.
type PiperConfig struct {
	Executable string `yaml:"executable" validate:"required"`
	Model      string `yaml:"model" validate:"required"`
	SampleRate int    `yaml:"sample_rate" validate:"min=8000"`
}

// VoskConfig points at a vosk-server websocket endpoint.
type VoskConfig struct {
	URL        string `yaml:"url" validate:"required,url"`
	SampleRate int    `yaml:"sample_rate" validate:"min=8000"`
}

// AudioConfig names the PulseAudio null sinks and the telephony stream matcher.
type AudioConfig struct {
	Enabled      bool          `yaml:"enabled"`
	CaptureSink  string        `yaml:"capture_sink" validate:"required"`
	PlaybackSink string        `yaml:"playback_sink" validate:"required"`
	StreamMatch  string        `yaml:"stream_match" validate:"required"`
	Attempts     int           `yaml:"attempts" validate:"min=1"`
	Backoff      time.Duration `yaml:"backoff" validate:"gte=0s"`
}

// ProximityConfig tunes the heartbeat watchdog.
type ProximityConfig struct {
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0s"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0s"`
}

// CameraConfig enables the RTSP face-recognition path when URL is set.
type CameraConfig struct {
	URL string  `yaml:"url" validate:"omitempty,url"`
	FPS float64 `yaml:"fps" validate:"gt=0"`
}

// FacesConfig holds the face models and the acceptance filter tuning.
type FacesConfig struct {
	DetectorModel   string        `yaml:"detector_model"`
	RecognizerModel string        `yaml:"recognizer_model"`
	KnownDir        string        `yaml:"known_dir"`
	StorageDir      string        `yaml:"storage_dir" validate:"required"`
	MatchThreshold  float64       `yaml:"match_threshold" validate:"gt=0,lte=1"`
	Consensus       int           `yaml:"consensus" validate:"min=1"`
	Window          time.Duration `yaml:"window" validate:"gt=0s"`
	Gap             time.Duration `yaml:"gap" validate:"gt=0s"`
	Cooldown        time.Duration `yaml:"cooldown" validate:"gte=0s"`
	BufferFrames    int           `yaml:"buffer_frames" validate:"min=1"`
}

// DialogueConfig tunes the call dialogue.
type DialogueConfig struct {
	Language    string        `yaml:"language" validate:"oneof=pl"`
	MaxDuration time.Duration `yaml:"max_duration" validate:"gt=0s"`
}

// ArchiveConfig selects where accepted-face clips are copied.
type ArchiveConfig struct {
	// Dir mirrors clips to a second local path, e.g. a NAS mount.
	Dir   string      `yaml:"dir"`
	S3    S3Config    `yaml:"s3"`
	Drive DriveConfig `yaml:"drive"`
}

// S3Config is an S3-compatible bucket. Empty Bucket disables it.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id" validate:"required_with=Bucket"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required_with=Bucket"`
}

// IsConfigured reports whether S3 uploads are enabled.
func (c S3Config) IsConfigured() bool { return c.Bucket != "" }

// DriveConfig is a Google Drive folder written with a service account.
type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file" validate:"required_with=FolderID"`
	FolderID        string `yaml:"folder_id"`
}

// IsConfigured reports whether Drive uploads are enabled.
func (c DriveConfig) IsConfigured() bool { return c.FolderID != "" }

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info", Dir: "log"},
		HTTP: HTTPConfig{Addr: ":5000"},
		Telephony: TelephonyConfig{
			ControlAddr: "127.0.0.1:4444",
			ListenPort:  5060,
		},
		Doorbell: DoorbellConfig{
			Scheme:     "http",
			Host:       "192.168.1.100",
			Port:       1088,
			DoorRelay:  1,
			LightRelay: 2,
			Timeout:    5 * time.Second,
		},
		Piper: PiperConfig{SampleRate: 22050},
		Vosk:  VoskConfig{URL: "ws://127.0.0.1:2700", SampleRate: 16000},
		Audio: AudioConfig{
			Enabled:      true,
			CaptureSink:  "VoskSink",
			PlaybackSink: "PiperSink",
			StreamMatch:  "baresip",
			Attempts:     3,
			Backoff:      100 * time.Millisecond,
		},
		Proximity: ProximityConfig{
			Timeout:      3500 * time.Millisecond,
			PollInterval: time.Second,
		},
		Camera: CameraConfig{FPS: 10},
		Faces: FacesConfig{
			DetectorModel:   "models/face_detection_yunet_2023mar.onnx",
			RecognizerModel: "models/face_recognition_sface_2021dec.onnx",
			KnownDir:        "known_faces",
			StorageDir:      "storage",
			MatchThreshold:  0.363,
			Consensus:       5,
			Window:          1200 * time.Millisecond,
			Gap:             500 * time.Millisecond,
			Cooldown:        10 * time.Second,
			BufferFrames:    30,
		},
		Dialogue: DialogueConfig{
			Language:    "pl",
			MaxDuration: 120 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for tools that need one section only.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str(&c.Log.Level, "LOG_LEVEL")
	e.str(&c.Log.Dir, "SYS_LOG_PATH")
	e.str(&c.HTTP.Addr, "PROXIMITY_ADDR")

	e.str(&c.Telephony.ControlAddr, "BARESIP_CTRL_ADDR")
	e.str(&c.Telephony.Domain, "SIP_DOMAIN")
	e.str(&c.Telephony.User, "SIP_USER")
	e.str(&c.Telephony.Password, "SIP_PASS")
	e.integer(&c.Telephony.ListenPort, "LISTEN_PORT")

	e.str(&c.Doorbell.Scheme, "VOX_SCHEME")
	e.str(&c.Doorbell.Host, "VOX_DOMAIN")
	e.integer(&c.Doorbell.Port, "VOX_HTTP_PORT")
	e.str(&c.Doorbell.User, "VOX_RELAY_USER")
	e.str(&c.Doorbell.Password, "VOX_RELAY_PASS")

	e.str(&c.Pushover.User, "PUSH_USER_KEY")
	e.str(&c.Pushover.Token, "PUSH_API_TOKEN")
	e.str(&c.Webhook.URL, "WEBHOOK_URL")

	e.str(&c.Piper.Executable, "PIPER_EXECUTABLE")
	e.str(&c.Piper.Model, "PIPER_MODEL_PATH")
	e.str(&c.Vosk.URL, "VOSK_SERVER_URL")

	e.str(&c.Camera.URL, "R20A_RTSP_URL")
	e.str(&c.Faces.DetectorModel, "FACE_DETECTOR_MODEL")
	e.str(&c.Faces.RecognizerModel, "FACE_RECOGNIZER_MODEL")
	e.str(&c.Faces.KnownDir, "KNOWN_FACES_PATH")
	e.str(&c.Faces.StorageDir, "SYS_FACES_PATH")

	e.str(&c.Dialogue.Language, "LANGUAGE")

	e.str(&c.Archive.Dir, "ARCHIVE_DIR")
	e.str(&c.Archive.S3.Bucket, "S3_BUCKET")
	e.str(&c.Archive.S3.Endpoint, "S3_ENDPOINT")
	e.str(&c.Archive.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	e.str(&c.Archive.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	e.str(&c.Archive.Drive.CredentialsFile, "DRIVE_CREDENTIALS_FILE")
	e.str(&c.Archive.Drive.FolderID, "DRIVE_FOLDER_ID")

	c.Dialogue.Language = strings.ToLower(c.Dialogue.Language)
	c.Log.Level = strings.ToLower(c.Log.Level)
	return e.err
}

type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) integer(dst *int, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("config: %s: %q is not a number", key, v))
		return
	}
	*dst = n
}
