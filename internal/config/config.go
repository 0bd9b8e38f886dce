package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"      validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database"    validate:"required"`
	Recognition RecognitionConfig `mapstructure:"recognition" validate:"required"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"    validate:"required"`
	Grading     GradingConfig     `mapstructure:"grading"     validate:"required"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RecognitionConfig contains settings for the external recognition service.
type RecognitionConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`

	// TimeoutSeconds bounds a single recognition call. A stalled call would
	// otherwise hold a concurrency slot for the rest of the batch.
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gt=0"`
}

// PipelineConfig contains settings for the ingestion pipeline and task queue.
type PipelineConfig struct {
	// MaxConcurrent bounds the number of in-flight recognition calls.
	// Recognition is network-bound and rate-limited upstream, so keep it small.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gt=0"`

	// QueueSize is the buffer size of the in-memory grading task queue.
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`

	// WorkerCount is the number of worker loops consuming the task queue.
	WorkerCount int `mapstructure:"worker_count" validate:"gt=0"`
}

// GradingConfig contains settings for the grading computation and its retry policy.
type GradingConfig struct {
	ModelName string `mapstructure:"model_name" validate:"required"`

	// MaxAttempts is the total number of attempts per grading task,
	// including the first one.
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`

	// BackoffSeconds is the fixed delay between attempts. Deliberately
	// constant rather than exponential.
	BackoffSeconds int `mapstructure:"backoff_seconds" validate:"gte=0"`
}
