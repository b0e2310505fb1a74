package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Service names accepted by Load.
const (
	ServiceGateway      = "gateway"
	ServiceFileStoring  = "file-storing"
	ServiceFileAnalysis = "file-analysis"
)

// Plagiarism comparison modes.
const (
	CompareModePriorContent    = "prior_content"
	CompareModeReferenceSample = "reference_sample"
)

// Config holds runtime configuration values shared by the three services.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	NATSSubject    string

	StorageBackend         string
	StorageRoot            string
	MaxUploadMB            int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	FileStoringBaseURL  string
	FileAnalysisBaseURL string
	UpstreamTimeout     time.Duration

	Analysis   AnalysisConfig
	Plagiarism PlagiarismConfig
	WordCloud  WordCloudConfig

	ReportsCacheTTL time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	OTLPEndpoint    string
}

// AnalysisConfig tunes the analysis orchestrator.
type AnalysisConfig struct {
	Workers              int
	Burst                int
	AdmitTimeout         time.Duration
	StaleAfter           time.Duration
	QueueSize            int
	MetadataRetries      int
	MetadataRetryInitial time.Duration
}

// PlagiarismConfig tunes the plagiarism heuristic.
type PlagiarismConfig struct {
	PriorLimit          int
	DetailedLimit       int
	SimilarityThreshold float64
	CompareMode         string
}

// WordCloudConfig describes the external word-cloud provider.
type WordCloudConfig struct {
	URL         string
	MaxChars    int
	Timeout     time.Duration
	FallbackURL string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load(service string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	name, port, err := serviceDefaults(service)
	if err != nil {
		return Config{}, err
	}

	v.SetDefault("app.name", name)
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", port)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("nats.subject", "antiplagiat.analysis.jobs")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.root", "./data/files")
	v.SetDefault("max_upload_mb", 10)
	v.SetDefault("cloudinary.folder", "antiplagiat/works")
	v.SetDefault("file_storing.base_url", "http://file-storing-service:8081")
	v.SetDefault("file_analysis.base_url", "http://file-analysis-service:8082")
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("analysis.workers", 5)
	v.SetDefault("analysis.burst", 10)
	v.SetDefault("analysis.admit_timeout", "1s")
	v.SetDefault("analysis.stale_after", "15m")
	v.SetDefault("analysis.queue_size", 64)
	v.SetDefault("metadata.retry_attempts", 3)
	v.SetDefault("metadata.retry_initial", "1s")
	v.SetDefault("plagiarism.prior_limit", 20)
	v.SetDefault("plagiarism.detailed_limit", 3)
	v.SetDefault("plagiarism.similarity_threshold", 30.0)
	v.SetDefault("plagiarism.compare_mode", CompareModePriorContent)
	v.SetDefault("wordcloud.url", "https://quickchart.io/wordcloud")
	v.SetDefault("wordcloud.max_chars", 3000)
	v.SetDefault("wordcloud.timeout", "30s")
	v.SetDefault("reports.cache_ttl", "1m")
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.window", "1s")

	durations := map[string]time.Duration{}
	for _, key := range []string{"upstream.timeout", "analysis.admit_timeout", "analysis.stale_after", "metadata.retry_initial", "wordcloud.timeout", "reports.cache_ttl", "rate_limit.window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseDriver:         strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		StorageBackend:         strings.ToLower(v.GetString("storage.backend")),
		StorageRoot:            v.GetString("storage.root"),
		MaxUploadMB:            v.GetInt("max_upload_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		FileStoringBaseURL:     strings.TrimRight(v.GetString("file_storing.base_url"), "/"),
		FileAnalysisBaseURL:    strings.TrimRight(v.GetString("file_analysis.base_url"), "/"),
		UpstreamTimeout:        durations["upstream.timeout"],
		Analysis: AnalysisConfig{
			Workers:              v.GetInt("analysis.workers"),
			Burst:                v.GetInt("analysis.burst"),
			AdmitTimeout:         durations["analysis.admit_timeout"],
			StaleAfter:           durations["analysis.stale_after"],
			QueueSize:            v.GetInt("analysis.queue_size"),
			MetadataRetries:      v.GetInt("metadata.retry_attempts"),
			MetadataRetryInitial: durations["metadata.retry_initial"],
		},
		Plagiarism: PlagiarismConfig{
			PriorLimit:          v.GetInt("plagiarism.prior_limit"),
			DetailedLimit:       v.GetInt("plagiarism.detailed_limit"),
			SimilarityThreshold: v.GetFloat64("plagiarism.similarity_threshold"),
			CompareMode:         strings.ToLower(v.GetString("plagiarism.compare_mode")),
		},
		WordCloud: WordCloudConfig{
			URL:         v.GetString("wordcloud.url"),
			MaxChars:    v.GetInt("wordcloud.max_chars"),
			Timeout:     durations["wordcloud.timeout"],
			FallbackURL: v.GetString("wordcloud.fallback_url"),
		},
		ReportsCacheTTL: durations["reports.cache_ttl"],
		RateLimitMax:    v.GetInt("rate_limit.max"),
		RateLimitWindow: durations["rate_limit.window"],
		OTLPEndpoint:    v.GetString("otel.exporter.otlp.endpoint"),
	}

	if err := cfg.validate(service); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func serviceDefaults(service string) (string, string, error) {
	switch service {
	case ServiceGateway:
		return "Antiplagiat Gateway", "8080", nil
	case ServiceFileStoring:
		return "File Storing Service", "8081", nil
	case ServiceFileAnalysis:
		return "File Analysis Service", "8082", nil
	default:
		return "", "", fmt.Errorf("unknown service %q", service)
	}
}

func (c *Config) validate(service string) error {
	if service != ServiceGateway {
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
			return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("database url must be provided")
		}
	}

	if service == ServiceFileStoring && c.StorageBackend != "local" && c.StorageBackend != "cloudinary" {
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}

	if c.Plagiarism.CompareMode != CompareModePriorContent && c.Plagiarism.CompareMode != CompareModeReferenceSample {
		return fmt.Errorf("unsupported plagiarism compare mode %q", c.Plagiarism.CompareMode)
	}

	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 10
	}
	if c.Analysis.Workers <= 0 {
		c.Analysis.Workers = 5
	}
	if c.Analysis.Burst < c.Analysis.Workers {
		c.Analysis.Burst = c.Analysis.Workers
	}
	if c.Analysis.QueueSize <= 0 {
		c.Analysis.QueueSize = 64
	}
	if c.Analysis.MetadataRetries <= 0 {
		c.Analysis.MetadataRetries = 3
	}
	if c.Plagiarism.PriorLimit <= 0 {
		c.Plagiarism.PriorLimit = 20
	}
	if c.Plagiarism.DetailedLimit <= 0 {
		c.Plagiarism.DetailedLimit = 3
	}
	if c.WordCloud.MaxChars <= 0 {
		c.WordCloud.MaxChars = 3000
	}

	return nil
}
