package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/kdimtricp/pestscan/internal/database"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Detection DetectionConfig `yaml:"detection"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Inference InferenceConfig `yaml:"inference"`
	Camera    CameraConfig    `yaml:"camera"`
	Prefs     PrefsConfig     `yaml:"prefs"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port          string `yaml:"port"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	// PublicURL prefixes URLs of locally stored uploads.
	PublicURL string `yaml:"public_url"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"` // sqlite | postgres
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	// URL selects the hosted object store; empty keeps uploads on disk.
	URL    string `yaml:"url"`
	Key    string `yaml:"key"`
	Bucket string `yaml:"bucket"`
}

type DetectionConfig struct {
	FunctionsURL string `yaml:"functions_url"`
	FunctionsKey string `yaml:"functions_key"`
}

type AlertsConfig struct {
	SMSWebhookURL string `yaml:"sms_webhook_url"`
}

type InferenceConfig struct {
	CacheDir          string `yaml:"cache_dir"`
	HubURL            string `yaml:"hub_url"`
	SharedLibraryPath string `yaml:"onnxruntime_library"`
	IntraOpThreads    int    `yaml:"intra_op_threads"`
	VideoFrames       int    `yaml:"video_frames"`
}

type CameraConfig struct {
	Device     string `yaml:"device"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

type PrefsConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			MaxUploadSize: 104857600,
			PublicURL:     "http://localhost:8080/uploads",
		},
		Database: DatabaseConfig{
			Type:     "sqlite",
			Path:     "./pestscan.db",
			Host:     "localhost",
			Port:     5432,
			User:     "pestscan",
			Password: "pestscan_dev",
			Name:     "pestscan",
		},
		Storage: StorageConfig{
			UploadDir: "./uploads",
			Bucket:    "crop-scans",
		},
		Inference: InferenceConfig{
			CacheDir:    "./models",
			HubURL:      "https://huggingface.co",
			VideoFrames: 5,
		},
		Camera: CameraConfig{
			Device:     "/dev/video0",
			FFmpegPath: "ffmpeg",
		},
		Prefs: PrefsConfig{
			Path: "./pestscan-prefs.json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Database.Type = getEnv("DB_TYPE", c.Database.Type)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Storage.UploadDir = getEnv("UPLOAD_DIR", c.Storage.UploadDir)
	c.Storage.URL = getEnv("STORAGE_URL", c.Storage.URL)
	c.Storage.Key = getEnv("STORAGE_KEY", c.Storage.Key)
	c.Detection.FunctionsURL = getEnv("FUNCTIONS_URL", c.Detection.FunctionsURL)
	c.Detection.FunctionsKey = getEnv("FUNCTIONS_KEY", c.Detection.FunctionsKey)
	c.Alerts.SMSWebhookURL = getEnv("SMS_WEBHOOK_URL", c.Alerts.SMSWebhookURL)
	c.Inference.CacheDir = getEnv("MODEL_CACHE_DIR", c.Inference.CacheDir)
	c.Inference.SharedLibraryPath = getEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH", c.Inference.SharedLibraryPath)
	c.Prefs.Path = getEnv("PREFS_PATH", c.Prefs.Path)
	c.Camera.Device = getEnv("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.FFmpegPath = getEnv("FFMPEG_PATH", c.Camera.FFmpegPath)

	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT: %w", err)
		}
		c.Database.Port = port
	}
	if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
		}
		c.Server.MaxUploadSize = size
	}
	return nil
}

// Validate reports the first invalid field by its YAML path.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fieldError("server.port", "must be a port number")
	}
	if c.Server.MaxUploadSize <= 0 {
		return fieldError("server.max_upload_size", "must be positive")
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fieldError("database.path", "is required for sqlite")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fieldError("database.host", "is required for postgres")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fieldError("database.port", "must be a port number")
		}
		if c.Database.Name == "" {
			return fieldError("database.name", "is required for postgres")
		}
	default:
		return fieldError("database.type", fmt.Sprintf("unsupported database type %q", c.Database.Type))
	}

	if c.Storage.URL == "" && c.Storage.UploadDir == "" {
		return fieldError("storage.upload_dir", "is required without storage.url")
	}
	if c.Storage.URL != "" {
		if err := checkURL(c.Storage.URL); err != nil {
			return fieldError("storage.url", err.Error())
		}
		if c.Storage.Bucket == "" {
			return fieldError("storage.bucket", "is required with storage.url")
		}
	}
	if c.Detection.FunctionsURL != "" {
		if err := checkURL(c.Detection.FunctionsURL); err != nil {
			return fieldError("detection.functions_url", err.Error())
		}
	}
	if c.Alerts.SMSWebhookURL != "" {
		if err := checkURL(c.Alerts.SMSWebhookURL); err != nil {
			return fieldError("alerts.sms_webhook_url", err.Error())
		}
	}

	if c.Inference.CacheDir == "" {
		return fieldError("inference.cache_dir", "is required")
	}
	if c.Inference.VideoFrames < 1 {
		return fieldError("inference.video_frames", "must be at least 1")
	}
	if c.Inference.IntraOpThreads < 0 {
		return fieldError("inference.intra_op_threads", "must not be negative")
	}
	if c.Prefs.Path == "" {
		return fieldError("prefs.path", "is required")
	}
	return nil
}

func fieldError(path, msg string) error {
	return fmt.Errorf("invalid config: %s %s", path, msg)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http(s) URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// DB converts the database section for database.NewDB.
func (c DatabaseConfig) DB() database.Config {
	return database.Config{
		Type:       c.Type,
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		Name:       c.Name,
		SQLitePath: c.Path,
		SSLMode:    c.SSLMode,
	}
}
