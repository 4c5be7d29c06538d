// Package config loads docfuse settings from defaults, an optional YAML
// file, a .env file and DOCFUSE_* environment variables, in that order.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full docfuse configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Parser     ParserConfig     `yaml:"parser"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Neo4j      Neo4jConfig      `yaml:"neo4j"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path            string `yaml:"path"`
	BusyTimeoutMS   int    `yaml:"busy_timeout_ms"`
	ConflictRetries int    `yaml:"conflict_retries"`
}

// ParserConfig configures document building
type ParserConfig struct {
	Modalities       string        `yaml:"modalities"`
	Workers          int           `yaml:"workers"`
	Annotator        string        `yaml:"annotator"` // prose | service
	AnnotatorURL     string        `yaml:"annotator_url"`
	AnnotatorTimeout time.Duration `yaml:"annotator_timeout"`
	Segmenter        string        `yaml:"segmenter"` // prose | block
}

// ExtractionConfig configures candidate extraction
type ExtractionConfig struct {
	Workers int    `yaml:"workers"`
	Rules   string `yaml:"rules"`
}

// Neo4jConfig configures the graph export target
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:          "docfuse.db",
			BusyTimeoutMS: 5000,
		},
		Parser: ParserConfig{
			Modalities:       "structural,lingual",
			Workers:          4,
			Annotator:        "prose",
			AnnotatorTimeout: 30 * time.Second,
			Segmenter:        "prose",
		},
		Extraction: ExtractionConfig{
			Workers: 4,
			Rules:   "relations.yaml",
		},
		Neo4j: Neo4jConfig{
			URI:  "bolt://localhost:7687",
			User: "neo4j",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. path and envFile are optional; a missing
// envFile is ignored, a missing path is an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load env file %s", envFile)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = n
		return nil
	}

	str("DOCFUSE_DB_PATH", &c.Database.Path)
	str("DOCFUSE_MODALITIES", &c.Parser.Modalities)
	str("DOCFUSE_ANNOTATOR", &c.Parser.Annotator)
	str("DOCFUSE_ANNOTATOR_URL", &c.Parser.AnnotatorURL)
	str("DOCFUSE_SEGMENTER", &c.Parser.Segmenter)
	str("DOCFUSE_RULES", &c.Extraction.Rules)
	str("DOCFUSE_NEO4J_URI", &c.Neo4j.URI)
	str("DOCFUSE_NEO4J_USER", &c.Neo4j.User)
	str("DOCFUSE_NEO4J_PASSWORD", &c.Neo4j.Password)
	str("DOCFUSE_LOG_LEVEL", &c.Log.Level)
	str("DOCFUSE_LOG_FORMAT", &c.Log.Format)

	for key, dst := range map[string]*int{
		"DOCFUSE_DB_BUSY_TIMEOUT_MS":  &c.Database.BusyTimeoutMS,
		"DOCFUSE_DB_CONFLICT_RETRIES": &c.Database.ConflictRetries,
		"DOCFUSE_PARSER_WORKERS":      &c.Parser.Workers,
		"DOCFUSE_EXTRACTION_WORKERS":  &c.Extraction.Workers,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv("DOCFUSE_ANNOTATOR_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "DOCFUSE_ANNOTATOR_TIMEOUT")
		}
		c.Parser.AnnotatorTimeout = d
	}
	return nil
}

// Validate checks that the values are usable
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Database.BusyTimeoutMS < 0 || c.Database.ConflictRetries < 0 {
		return errors.New("database timeouts and retries must not be negative")
	}
	if _, err := c.Modalities(); err != nil {
		return err
	}
	if c.Parser.Workers <= 0 || c.Extraction.Workers <= 0 {
		return errors.New("worker counts must be > 0")
	}
	switch c.Parser.Annotator {
	case "prose":
	case "service":
		if c.Parser.AnnotatorURL == "" {
			return errors.New("parser.annotator_url is required for the service annotator")
		}
	default:
		return errors.Errorf("unsupported annotator %q (use prose or service)", c.Parser.Annotator)
	}
	switch c.Parser.Segmenter {
	case "prose", "block":
	default:
		return errors.Errorf("unsupported segmenter %q (use prose or block)", c.Parser.Segmenter)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// Modalities parses the configured modality list
func (c *Config) Modalities() (model.Modality, error) {
	return model.ParseModalities(c.Parser.Modalities)
}

// NewLogger builds the process logger
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger, nil
}
