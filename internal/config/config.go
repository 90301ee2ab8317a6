// Package config provides unified configuration for tripbench runs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	tberrors "github.com/arkilian/tripbench/internal/errors"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "TRIPBENCH"

// Grouping keys accepted by GroupBy.
const (
	GroupByVendor         = "vendor_id"
	GroupByPaymentType    = "payment_type"
	GroupByPassengerCount = "passenger_count"
	GroupByRateCode       = "rate_code_id"
	GroupByPickupHour     = "pickup_hour"
	GroupByPickupGeohash  = "pickup_geohash"
)

// Log formats accepted by LogFormat.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the configuration for a single tripbench run.
type Config struct {
	// Input is a local path or an s3://bucket/key URI. Several inputs
	// are separated by commas and loaded in order.
	Input string `json:"input" yaml:"input"`

	// Amplify is the repetition count R; the run processes R+1 copies
	Amplify int `json:"amplify" yaml:"amplify"`

	// Strict aborts the run on the first malformed row instead of dropping it
	Strict bool `json:"strict" yaml:"strict"`

	// ShufflePartitions is the number of reducers in the aggregation merge phase
	ShufflePartitions int `json:"shuffle_partitions" yaml:"shuffle_partitions"`

	// MapTasks is the number of shards in the partial reduction phase.
	// Zero means ShufflePartitions.
	MapTasks int `json:"map_tasks" yaml:"map_tasks"`

	// Parallel runs map tasks concurrently
	Parallel bool `json:"parallel" yaml:"parallel"`

	GroupBy          string `json:"group_by" yaml:"group_by"`
	GeohashPrecision int    `json:"geohash_precision" yaml:"geohash_precision"`

	// InferRows bounds the prefix read by schema inference
	InferRows int `json:"infer_rows" yaml:"infer_rows"`

	// Predicates lists cleaning predicate names; empty means all standard predicates
	Predicates []string `json:"predicates" yaml:"predicates"`

	// Aggregates lists extra fn(field) aggregates reported per group
	Aggregates []string `json:"aggregates" yaml:"aggregates"`

	// Label names this run in history and in the comparison table
	Label string `json:"label" yaml:"label"`

	// Baseline is the label of a stored run to compare against
	Baseline string `json:"baseline" yaml:"baseline"`

	// WorkDir holds downloaded inputs
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	LogFormat string `json:"log_format" yaml:"log_format"`

	History HistoryConfig `json:"history" yaml:"history"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Report  ReportConfig  `json:"report" yaml:"report"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// HistoryConfig holds run-history configuration.
type HistoryConfig struct {
	// Path is the sqlite database file; empty disables history
	Path string `json:"path" yaml:"path"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// Textfile is the prometheus textfile output path; empty disables export
	Textfile string `json:"textfile" yaml:"textfile"`
}

// ReportConfig holds report output configuration.
type ReportConfig struct {
	// Output is a local path or s3:// URI for the JSON report
	Output string `json:"output" yaml:"output"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Amplify:           0,
		ShufflePartitions: 8,
		Parallel:          true,
		GroupBy:           GroupByVendor,
		GeohashPrecision:  5,
		InferRows:         100,
		Label:             "after",
		LogFormat:         LogFormatText,
		Storage: StorageConfig{
			S3: S3Config{Region: "us-east-1"},
		},
	}
}

// Resolve fills derived defaults.
func (c *Config) Resolve() {
	if c.MapTasks == 0 {
		c.MapTasks = c.ShufflePartitions
	}
	if c.Label == "" {
		c.Label = "after"
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "tripbench")
	}
	for i, p := range c.Predicates {
		c.Predicates[i] = strings.TrimSpace(p)
	}
	for i, a := range c.Aggregates {
		c.Aggregates[i] = strings.TrimSpace(a)
	}
}

// Inputs returns the input locations in order.
func (c *Config) Inputs() []string {
	var out []string
	for _, in := range strings.Split(c.Input, ",") {
		if in = strings.TrimSpace(in); in != "" {
			out = append(out, in)
		}
	}
	return out
}

// Validate validates the configuration for a run.
func (c *Config) Validate() error {
	if len(c.Inputs()) == 0 {
		return tberrors.NewConfigError("input is required", nil)
	}
	if c.Amplify < 0 {
		return tberrors.NewConfigError(fmt.Sprintf("amplify must be >= 0, got %d", c.Amplify), nil)
	}
	if c.ShufflePartitions < 1 {
		return tberrors.NewConfigError(fmt.Sprintf("shuffle_partitions must be >= 1, got %d", c.ShufflePartitions), nil)
	}
	if c.MapTasks < 0 {
		return tberrors.NewConfigError(fmt.Sprintf("map_tasks must be >= 0, got %d", c.MapTasks), nil)
	}
	switch c.GroupBy {
	case GroupByVendor, GroupByPaymentType, GroupByPassengerCount, GroupByRateCode,
		GroupByPickupHour, GroupByPickupGeohash:
	default:
		return tberrors.NewConfigError(fmt.Sprintf("invalid group_by: %q", c.GroupBy), nil)
	}
	if c.GeohashPrecision < 1 || c.GeohashPrecision > 12 {
		return tberrors.NewConfigError(fmt.Sprintf("geohash_precision must be between 1 and 12, got %d", c.GeohashPrecision), nil)
	}
	if c.InferRows < 1 {
		return tberrors.NewConfigError(fmt.Sprintf("infer_rows must be >= 1, got %d", c.InferRows), nil)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return tberrors.NewConfigError(fmt.Sprintf("invalid log_format: %q (must be text or json)", c.LogFormat), nil)
	}
	if c.Baseline != "" && c.History.Path == "" {
		return tberrors.NewConfigError("baseline requires history.path", nil)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tberrors.NewConfigError("failed to read config file", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, tberrors.NewConfigError("failed to parse YAML config", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, tberrors.NewConfigError("failed to parse JSON config", err)
		}
	default:
		return nil, tberrors.NewConfigError(fmt.Sprintf("unsupported config file format: %s", ext), nil)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides. Keys are the config keys
// upper-cased with dots replaced by underscores, prefixed with TRIPBENCH_,
// e.g. TRIPBENCH_SHUFFLE_PARTITIONS or TRIPBENCH_HISTORY_PATH.
func LoadFromEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setString("input", &cfg.Input)
	setInt("amplify", &cfg.Amplify)
	setBool("strict", &cfg.Strict)
	setInt("shuffle_partitions", &cfg.ShufflePartitions)
	setInt("map_tasks", &cfg.MapTasks)
	setBool("parallel", &cfg.Parallel)
	setString("group_by", &cfg.GroupBy)
	setInt("geohash_precision", &cfg.GeohashPrecision)
	setInt("infer_rows", &cfg.InferRows)
	if v.IsSet("predicates") {
		cfg.Predicates = strings.Split(v.GetString("predicates"), ",")
	}
	if v.IsSet("aggregates") {
		cfg.Aggregates = strings.Split(v.GetString("aggregates"), ",")
	}
	setString("label", &cfg.Label)
	setString("baseline", &cfg.Baseline)
	setString("work_dir", &cfg.WorkDir)
	setString("log_format", &cfg.LogFormat)

	setString("history.path", &cfg.History.Path)
	setString("metrics.textfile", &cfg.Metrics.Textfile)
	setString("report.output", &cfg.Report.Output)

	// Storage configuration
	setString("storage.s3.region", &cfg.Storage.S3.Region)
	setString("storage.s3.endpoint", &cfg.Storage.S3.Endpoint)
	setBool("storage.s3.use_path_style", &cfg.Storage.S3.UsePathStyle)
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.WorkDir}
	if c.History.Path != "" {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	if c.Metrics.Textfile != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.Textfile))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
