package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	JWT   JWTConfig `yaml:"jwt"`
	AI    AIConfig  `yaml:"ai"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpiresMin int    `yaml:"expires_min"`
}

// AIConfig is copied into the generation client and the orchestrator at
// construction time; the services never read the package global back.
type AIConfig struct {
	OllamaBaseURL    string  `yaml:"ollama_base_url"`
	ImagesBaseURL    string  `yaml:"images_base_url"`
	TextDefault      string  `yaml:"text_default"`
	TextScreenwriter string  `yaml:"text_screenwriter"`
	SceneDefault     string  `yaml:"scene_default"`
	SceneCreative    string  `yaml:"scene_creative"`
	ImageFast        string  `yaml:"image_fast"`
	ImageQuality     string  `yaml:"image_quality"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	Retries          int     `yaml:"retries"`
	Backoff          float64 `yaml:"backoff"`
}

func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiresMin) * time.Minute
}

var AppConfig *Config

func InitConfig() {
	cfg, err := Load("config/config.yaml")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	AppConfig = cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	ai := &c.AI
	if ai.OllamaBaseURL == "" {
		ai.OllamaBaseURL = "http://localhost:11434"
	}
	if ai.TextDefault == "" {
		ai.TextDefault = "llama3.1:8b"
	}
	if ai.TextScreenwriter == "" {
		ai.TextScreenwriter = "qwen2.5:32b"
	}
	if ai.SceneDefault == "" {
		ai.SceneDefault = "openhermes:7b"
	}
	if ai.SceneCreative == "" {
		ai.SceneCreative = "mythomax:13b"
	}
	if ai.ImageFast == "" {
		ai.ImageFast = "sdxl-turbo"
	}
	if ai.ImageQuality == "" {
		ai.ImageQuality = "sdxl"
	}
	if ai.Temperature == 0 {
		ai.Temperature = 0.8
	}
	if ai.MaxTokens == 0 {
		ai.MaxTokens = 1024
	}
	if ai.TimeoutSeconds == 0 {
		ai.TimeoutSeconds = 120
	}
	if ai.Retries == 0 {
		ai.Retries = 2
	}
	if ai.Backoff == 0 {
		ai.Backoff = 1.5
	}
	if c.JWT.ExpiresMin == 0 {
		c.JWT.ExpiresMin = 60
	}
}
