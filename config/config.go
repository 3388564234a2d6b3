package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gasflow/reader/entsog"
)

type Config struct {
	Gasflow   GasflowConfig   `yaml:"gasflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	HTTP      HTTPConfig      `yaml:"http"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Desfa     DesfaConfig     `yaml:"desfa"`
	Entsog    EntsogConfig    `yaml:"entsog"`
	Entsoe    EntsoeConfig    `yaml:"entsoe"`
	Writer    WriterConfig    `yaml:"writer"`
	Storage   StorageConfig   `yaml:"storage"`
}

type GasflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

// SheetLayoutConfig describes where the data sits inside a wide DESFA sheet.
type SheetLayoutConfig struct {
	SkipRows            int    `yaml:"skip_rows"`
	DropColumns         []int  `yaml:"drop_columns"`
	TrimTrailingRows    int    `yaml:"trim_trailing_rows"`
	TrimTrailingColumns int    `yaml:"trim_trailing_columns"`
	AggregateMarker     string `yaml:"aggregate_marker"`
	EntryColumns        int    `yaml:"entry_columns"`
	TimeFormat          string `yaml:"time_format"`
}

type EntryPointConfig struct {
	Name      string `yaml:"name"`
	StartYear int    `yaml:"start_year"`
}

type QualityConfig struct {
	MarkerFormat string             `yaml:"marker_format"`
	MarkerOffset int                `yaml:"marker_offset"`
	Columns      []string           `yaml:"columns"`
	EntryPoints  []EntryPointConfig `yaml:"entry_points"`
}

type DesfaConfig struct {
	FlowsURL   string            `yaml:"flows_url"`
	GCVURL     string            `yaml:"gcv_url"`
	QualityURL string            `yaml:"quality_url"`
	Flows      SheetLayoutConfig `yaml:"flows"`
	GCV        SheetLayoutConfig `yaml:"gcv"`
	Quality    QualityConfig     `yaml:"quality"`
}

type EntsogConfig struct {
	BaseURL        string `yaml:"base_url"`
	BalancingZone  string `yaml:"balancing_zone"`
	Country        string `yaml:"country"`
	WindowDays     int    `yaml:"window_days"`
	OnExhausted    string `yaml:"on_exhausted"`
	PartitionStart string `yaml:"partition_start"`
}

type NeighbourConfig struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
}

// EntsoeConfig configures the ENTSO-E assets. HydroPartitionStart applies to
// reservoir filling, which is published from September 2017.
type EntsoeConfig struct {
	BaseURL             string            `yaml:"base_url"`
	APIKeyEnv           string            `yaml:"api_key_env"`
	Country             string            `yaml:"country"`
	BiddingZone         string            `yaml:"bidding_zone"`
	Neighbours          []NeighbourConfig `yaml:"neighbours"`
	PartitionStart      string            `yaml:"partition_start"`
	HydroPartitionStart string            `yaml:"hydro_partition_start"`
}

type WriterConfig struct {
	Partitioning PartitioningConfig `yaml:"partitioning"`
	Formats      FormatsConfig      `yaml:"formats"`
}

type PartitioningConfig struct {
	Prefix     string `yaml:"prefix"`
	TimeFormat string `yaml:"time_format"`
}

type FormatsConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Compression  string `yaml:"compression"`
	Parallelism  int64  `yaml:"parallelism"`
	RowGroupSize int64  `yaml:"row_group_size"`
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
	Local    LocalConfig    `yaml:"local"`
}

// LocalConfig writes parquet files below Dir, laid out like the S3 keys.
type LocalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Schema   string `yaml:"schema"`
	MaxConns int    `yaml:"max_conns"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration the DESFA and ENTSOG sources were
// built against. Files loaded with LoadConfig are decoded on top of it.
func Default() Config {
	return Config{
		Gasflow: GasflowConfig{Name: "gasflow", Version: "dev"},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{CloudWatch: CloudWatchConfig{Namespace: "GasFlow", Dashboard: "GasFlow"}},
		HTTP:    HTTPConfig{Timeout: 60 * time.Second, UserAgent: "gasflow/1.0"},
		Retry: RetryConfig{
			MaxAttempts:       5,
			BaseDelay:         time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 2, BurstSize: 1},
		Desfa: DesfaConfig{
			FlowsURL:   "https://www.desfa.gr/userfiles/pdflist/DDRA/Flows.xlsx",
			GCVURL:     "https://www.desfa.gr/userfiles/pdflist/DDRA/GCV.xlsx",
			QualityURL: "https://www.desfa.gr/userfiles/pdflist/DDRA/NG-QUALITY.xls",
			Flows: SheetLayoutConfig{
				SkipRows:        4,
				DropColumns:     []int{5},
				AggregateMarker: "ΣΥΝΟΛΟ",
				EntryColumns:    4,
				TimeFormat:      "year",
			},
			GCV: SheetLayoutConfig{
				SkipRows:            4,
				DropColumns:         []int{5},
				TrimTrailingRows:    4,
				TrimTrailingColumns: 1,
				EntryColumns:        4,
				TimeFormat:          "date",
			},
			Quality: QualityConfig{
				MarkerFormat: "Entry Point: %s",
				MarkerOffset: 3,
				Columns: []string{
					"timestamp", "c1", "c2", "c3", "i_c4", "n_c4", "i_c5", "n_c5", "neo_c5",
					"c6_plus", "n2", "co2", "gross_heating_value", "wobbe_index", "water_dew_point",
					"hydrocarbon_dew_point_max",
				},
				EntryPoints: []EntryPointConfig{
					{Name: "AGIA TRIADA", StartYear: 2008},
					{Name: "SIDIROKASTRO", StartYear: 2008},
					{Name: "KIPI", StartYear: 2008},
					{Name: "NEA MESIMVRIA", StartYear: 2021},
				},
			},
		},
		Entsog: EntsogConfig{
			BaseURL:        "https://transparency.entsog.eu/api/v1",
			BalancingZone:  "Greece",
			Country:        "GR",
			WindowDays:     2,
			OnExhausted:    entsog.OnExhaustedFail,
			PartitionStart: "2017-01",
		},
		Entsoe: EntsoeConfig{
			BaseURL:     "https://web-api.tp.entsoe.eu/api",
			APIKeyEnv:   "ENTSOE_API_KEY",
			Country:     "gr",
			BiddingZone: "10YGR-HTSO-----Y",
			Neighbours: []NeighbourConfig{
				{Name: "al", Domains: []string{"10YAL-KESH-----5"}},
				{Name: "bg", Domains: []string{"10YCA-BULGARIA-R"}},
				{Name: "mk", Domains: []string{"10YMK-MEPSO----8"}},
				{Name: "tr", Domains: []string{"10YTR-TEIAS----W"}},
				{Name: "it", Domains: []string{"10Y1001A1001A699", "10Y1001A1001A788", "10Y1001A1001A66F"}},
			},
			PartitionStart:      "2014-12",
			HydroPartitionStart: "2017-09",
		},
		Writer: WriterConfig{
			Partitioning: PartitioningConfig{Prefix: "gasflow", TimeFormat: "year={year}/month={month}"},
			Formats:      FormatsConfig{Parquet: ParquetConfig{Compression: "snappy", Parallelism: 4, RowGroupSize: 128 * 1024 * 1024}},
		},
		Storage: StorageConfig{
			Postgres: PostgresConfig{Schema: "public", MaxConns: 4},
			Local:    LocalConfig{Dir: "data"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Storage.Postgres.URL = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.Gasflow.Name == "" {
		return fmt.Errorf("gasflow.name is required")
	}
	if cfg.Gasflow.Version == "" {
		return fmt.Errorf("gasflow.version is required")
	}

	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be greater than 0")
	}

	if cfg.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be greater than 0")
	}
	if cfg.Retry.BaseDelay < 0 || cfg.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}

	if cfg.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be greater than 0")
	}

	for _, layout := range []struct {
		name string
		cfg  SheetLayoutConfig
	}{{"desfa.flows", cfg.Desfa.Flows}, {"desfa.gcv", cfg.Desfa.GCV}} {
		if layout.cfg.EntryColumns < 0 {
			return fmt.Errorf("%s.entry_columns must not be negative", layout.name)
		}
		switch layout.cfg.TimeFormat {
		case "year", "date":
		default:
			return fmt.Errorf("%s.time_format '%s' is invalid", layout.name, layout.cfg.TimeFormat)
		}
	}

	if n := len(cfg.Desfa.Quality.Columns); n != 16 {
		return fmt.Errorf("desfa.quality.columns must list 16 columns, got %d", n)
	}
	if !strings.Contains(cfg.Desfa.Quality.MarkerFormat, "%s") {
		return fmt.Errorf("desfa.quality.marker_format must contain %%s")
	}
	for _, p := range cfg.Desfa.Quality.EntryPoints {
		if p.Name == "" || p.StartYear <= 0 {
			return fmt.Errorf("desfa.quality.entry_points entries need a name and a start_year")
		}
	}

	if cfg.Entsog.WindowDays < 2 {
		return fmt.Errorf("entsog.window_days must be at least 2")
	}
	switch cfg.Entsog.OnExhausted {
	case entsog.OnExhaustedFail, entsog.OnExhaustedSkip:
	default:
		return fmt.Errorf("entsog.on_exhausted '%s' is invalid", cfg.Entsog.OnExhausted)
	}

	if cfg.Storage.Postgres.Enabled && cfg.Storage.Postgres.URL == "" {
		return fmt.Errorf("storage.postgres.url (or DATABASE_URL) is required when postgres is enabled")
	}

	if cfg.Storage.Local.Enabled && cfg.Storage.Local.Dir == "" {
		return fmt.Errorf("storage.local.dir is required when local storage is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
