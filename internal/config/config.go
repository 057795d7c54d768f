package config

import (
	"fmt"
	"time"

	"github.com/umich-dbgroup/litmus/internal/util"

	"github.com/go-playground/validator"
)

// Config is the process wide configuration shared by the CLI, the worker and the server.
type Config struct {
	Debug bool

	// Engine selects the connector for the database the candidate queries run against.
	Engine      string `validate:"required,oneof=postgres mysql sqlite"`
	DatabaseURL string `validate:"required"`
	// MetaDatabaseURL points at the Postgres database holding results, locks and cache blobs.
	MetaDatabaseURL string

	CacheBackend string `validate:"required,oneof=file s3 postgres none"`
	CacheDir     string
	S3           S3Config

	StatementTimeout      time.Duration `validate:"gt=0"`
	BoundLimit            int           `validate:"gte=0"`
	TopTuples             int           `validate:"gte=1"`
	MaxIncrementalFetches int           `validate:"gte=0"`
	MaxReruns             int           `validate:"gte=0"`
	MaxIterations         int           `validate:"gte=1"`
	Workers               int           `validate:"gte=1"`
	AIGParallelism        int           `validate:"gte=1"`
	TextIndexPrefix       int           `validate:"gte=1"`
	IgnoreRelations       []string
	QIGMode               string `validate:"oneof=type range position"`
	Narrow                bool
	Seed                  int64

	RabbitMQ RabbitMQConfig

	Port         string
	AuthURL      string
	MasterAPIKey string
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

type RabbitMQConfig struct {
	User     string
	Password string
	Host     string
	Port     string
}

// URL returns the AMQP connection url.
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

// Load reads the configuration from the environment (after loading .env) and validates it.
func Load() (*Config, error) {
	util.LoadEnv()

	cfg := &Config{
		Debug: util.GetEnvBool("DEBUG", false),

		Engine:          util.GetEnvString("LITMUS_ENGINE", "postgres"),
		DatabaseURL:     util.GetEnv("DATABASE_URL"),
		MetaDatabaseURL: util.GetEnv("META_DATABASE_URL"),

		CacheBackend: util.GetEnvString("LITMUS_CACHE_BACKEND", "file"),
		CacheDir:     util.GetEnvString("LITMUS_CACHE_DIR", ".litmus-cache"),
		S3: S3Config{
			Region:    util.GetEnv("AWS_REGION"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
			Prefix:    util.GetEnvString("AWS_PREFIX", "litmus"),
		},

		StatementTimeout:      util.GetEnvMillis("LITMUS_TIMEOUT_MS", 15*time.Second),
		BoundLimit:            util.GetEnvInt("LITMUS_BOUND_LIMIT", 15),
		TopTuples:             util.GetEnvInt("LITMUS_TOP_TUPLES", 5),
		MaxIncrementalFetches: util.GetEnvInt("LITMUS_MAX_INCREMENTAL", 1000),
		MaxReruns:             util.GetEnvInt("LITMUS_MAX_RERUNS", 3),
		MaxIterations:         util.GetEnvInt("LITMUS_MAX_ITERATIONS", 50),
		Workers:               util.GetEnvInt("LITMUS_WORKERS", 1),
		AIGParallelism:        util.GetEnvInt("LITMUS_AIG_PARALLEL", 4),
		TextIndexPrefix:       util.GetEnvInt("LITMUS_TEXT_INDEX_PREFIX", 15),
		IgnoreRelations:       util.GetEnvList("LITMUS_IGNORE_RELATIONS", []string{"size", "history", "ids"}),
		QIGMode:               util.GetEnvString("LITMUS_QIG_MODE", "range"),
		Narrow:                util.GetEnvBool("LITMUS_NARROW", false),
		Seed:                  int64(util.GetEnvNumeric("LITMUS_SEED", 0)),

		RabbitMQ: RabbitMQConfig{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnv("RABBITMQ_HOST"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		},

		Port:         util.GetEnvString("PORT", "8080"),
		AuthURL:      util.GetEnv("AUTH_URL"),
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and the cross field rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.CacheBackend == "postgres" && cfg.MetaDatabaseURL == "" {
		return fmt.Errorf("invalid configuration: META_DATABASE_URL is required for the postgres cache backend")
	}
	if cfg.CacheBackend == "s3" && cfg.S3.Bucket == "" {
		return fmt.Errorf("invalid configuration: AWS_BUCKET is required for the s3 cache backend")
	}
	return nil
}
