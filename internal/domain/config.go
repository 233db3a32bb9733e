package domain

// Config holds the complete fraudscore configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Model artifacts and the feature scheme they were fitted on
	Artifacts ArtifactConfig `json:"artifacts"`

	// Decision rule
	Engine EngineConfig `json:"engine"`

	// Prediction log file
	PredictionLog PredictionLogConfig `json:"predictionLog"`

	// Optional append-only decision mirror
	Audit AuditConfig `json:"audit"`

	// Observability
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ArtifactConfig locates the model and optional scaler on disk.
type ArtifactConfig struct {
	ModelPath     string `json:"modelPath"`
	ScalerPath    string `json:"scalerPath,omitempty"` // empty: no scaler
	FeatureScheme string `json:"featureScheme"`
}

// EngineConfig holds decision engine settings.
type EngineConfig struct {
	// Threshold is the fraud probability at or above which a transaction is flagged.
	Threshold float64 `json:"threshold"`

	// ScoreTimeoutMs bounds each model call; 0 disables the bound.
	ScoreTimeoutMs int `json:"scoreTimeoutMs"`

	// ScoreCacheSize is the number of memoized model scores; 0 disables the cache.
	ScoreCacheSize int `json:"scoreCacheSize"`
}

// PredictionLogConfig holds the per-request prediction log settings.
type PredictionLogConfig struct {
	Path   string `json:"path"`
	Stdout bool   `json:"stdout"` // also write records to stdout
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Feature scheme names.
const (
	SchemeDerived = "derived"
	SchemeRaw     = "raw"
)

// Audit sink drivers.
const (
	AuditNone     = "none"
	AuditSQLite   = "sqlite"
	AuditPostgres = "postgres"
	AuditRedis    = "redis"
)

// DefaultThreshold is the default fraud probability cutoff.
const DefaultThreshold = 0.6

// DefaultConfig returns the default configuration: derived features,
// threshold 0.6, file prediction log and no audit sink.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Artifacts: ArtifactConfig{
			ModelPath:     "models/isolation_forest.json",
			FeatureScheme: SchemeDerived,
		},
		Engine: EngineConfig{
			Threshold: DefaultThreshold,
		},
		PredictionLog: PredictionLogConfig{
			Path: "logs/predictions.log",
		},
		Audit: AuditConfig{
			Driver:         AuditNone,
			Buffer:         1024,
			SQLitePath:     "./fraudscore.db",
			PostgresHost:   "localhost",
			PostgresPort:   5432,
			PostgresDB:     "fraudscore",
			RedisAddr:      "localhost:6379",
			RedisStream:    "fraudscore:decisions",
			RedisMaxLength: 100000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
