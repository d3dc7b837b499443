package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Camera     CameraConfig     `yaml:"camera"`
	Vision     VisionConfig     `yaml:"vision"`
	Gallery    GalleryConfig    `yaml:"gallery"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Stream     StreamConfig     `yaml:"stream"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns" split_words:"true"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MigrateURL is the DSN in the form expected by the golang-migrate pgx/v5 driver.
func (d DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig configures attendance notifications. An empty URL disables NATS
// and events go straight to the WebSocket hub.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key" split_words:"true"`
	SecretKey string `yaml:"secret_key" split_words:"true"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" split_words:"true"`
}

// CameraConfig describes the single capture source.
type CameraConfig struct {
	Type       string `yaml:"type"` // device, rtsp, http, youtube
	Source     string `yaml:"source"`
	FPS        int    `yaml:"fps"`
	Width      int    `yaml:"width"`
	MaxRetries int    `yaml:"max_retries" split_words:"true"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir" split_words:"true"`
	DetectionThreshold float64 `yaml:"detection_threshold" split_words:"true"`
	MatchThreshold     float64 `yaml:"match_threshold" split_words:"true"`
	MinFaceSize        int     `yaml:"min_face_size" split_words:"true"`
}

type GalleryConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" split_words:"true"`
}

type AttendanceConfig struct {
	Cooldown     time.Duration `yaml:"cooldown"`
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
	LabelMode    string        `yaml:"label_mode" split_words:"true"` // on_event, always
}

type StreamConfig struct {
	Boundary    string `yaml:"boundary"`
	JPEGQuality int    `yaml:"jpeg_quality" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	LabelOnEvent = "on_event"
	LabelAlways  = "always"
)

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "attendance"
	}
	if cfg.Camera.Type == "" {
		cfg.Camera.Type = "device"
	}
	if cfg.Camera.Source == "" && cfg.Camera.Type == "device" {
		cfg.Camera.Source = "/dev/video0"
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MatchThreshold == 0 {
		cfg.Vision.MatchThreshold = 0.6
	}
	if cfg.Vision.MinFaceSize == 0 {
		cfg.Vision.MinFaceSize = 32
	}
	if cfg.Gallery.RefreshInterval == 0 {
		cfg.Gallery.RefreshInterval = 5 * time.Second
	}
	if cfg.Attendance.Cooldown == 0 {
		cfg.Attendance.Cooldown = 10 * time.Second
	}
	if cfg.Attendance.WriteTimeout == 0 {
		cfg.Attendance.WriteTimeout = 3 * time.Second
	}
	if cfg.Attendance.LabelMode == "" {
		cfg.Attendance.LabelMode = LabelOnEvent
	}
	if cfg.Stream.Boundary == "" {
		cfg.Stream.Boundary = "frame"
	}
	if cfg.Stream.JPEGQuality == 0 {
		cfg.Stream.JPEGQuality = 80
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides lets ATTEND_<SECTION>_<FIELD> variables override the file.
// Unset variables leave the YAML value untouched.
func applyEnvOverrides(cfg *Config) error {
	sections := []struct {
		prefix string
		spec   interface{}
	}{
		{"ATTEND_SERVER", &cfg.Server},
		{"ATTEND_DB", &cfg.Database},
		{"ATTEND_NATS", &cfg.NATS},
		{"ATTEND_MINIO", &cfg.MinIO},
		{"ATTEND_CAMERA", &cfg.Camera},
		{"ATTEND_VISION", &cfg.Vision},
		{"ATTEND_GALLERY", &cfg.Gallery},
		{"ATTEND_ATTENDANCE", &cfg.Attendance},
		{"ATTEND_STREAM", &cfg.Stream},
		{"ATTEND_LOG", &cfg.Logging},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.spec); err != nil {
			return fmt.Errorf("apply env overrides: %w", err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Camera.Type {
	case "device", "rtsp", "http", "youtube":
	default:
		return fmt.Errorf("invalid camera type %q", c.Camera.Type)
	}
	if c.Camera.Source == "" {
		return fmt.Errorf("camera source is required for type %q", c.Camera.Type)
	}
	switch c.Attendance.LabelMode {
	case LabelOnEvent, LabelAlways:
	default:
		return fmt.Errorf("invalid label mode %q", c.Attendance.LabelMode)
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in [1,100], got %d", c.Stream.JPEGQuality)
	}
	if c.Attendance.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	if c.Attendance.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %s", c.Attendance.WriteTimeout)
	}
	if c.Gallery.RefreshInterval <= 0 {
		return fmt.Errorf("gallery refresh interval must be positive, got %s", c.Gallery.RefreshInterval)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera fps must be positive, got %d", c.Camera.FPS)
	}
	if c.Camera.Width <= 0 {
		return fmt.Errorf("camera width must be positive, got %d", c.Camera.Width)
	}
	if c.Camera.MaxRetries < 0 {
		return fmt.Errorf("camera max retries must not be negative")
	}
	return nil
}
