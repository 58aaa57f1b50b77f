package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Tracts   TractsConfig   `yaml:"tracts" mapstructure:"tracts"`
	Stores   StoresConfig   `yaml:"stores" mapstructure:"stores"`
	ACS      ACSConfig      `yaml:"acs" mapstructure:"acs"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Weights  WeightsConfig  `yaml:"weights" mapstructure:"weights"`
	Moran    MoranConfig    `yaml:"moran" mapstructure:"moran"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// TractsConfig locates the region polygon layer.
type TractsConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	SourceCRS int    `yaml:"source_crs" mapstructure:"source_crs"`
	IDField   string `yaml:"id_field" mapstructure:"id_field"`
	NameField string `yaml:"name_field" mapstructure:"name_field"`
	// CountyFP restricts the layer to one county; empty keeps the whole file.
	CountyFP  string `yaml:"county_fp" mapstructure:"county_fp"`
	TigerYear int    `yaml:"tiger_year" mapstructure:"tiger_year"`
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// StoresConfig locates the store point layer and its attribute names.
type StoresConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	SourceCRS   int    `yaml:"source_crs" mapstructure:"source_crs"`
	IDField     string `yaml:"id_field" mapstructure:"id_field"`
	NameField   string `yaml:"name_field" mapstructure:"name_field"`
	StatusField string `yaml:"status_field" mapstructure:"status_field"`
	LatField    string `yaml:"lat_field" mapstructure:"lat_field"`
	LonField    string `yaml:"lon_field" mapstructure:"lon_field"`
}

// ACSConfig configures the demographic fetch from the Census ACS API.
type ACSConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Dataset  string `yaml:"dataset" mapstructure:"dataset"`
	Year     int    `yaml:"year" mapstructure:"year"`
	Variable string `yaml:"variable" mapstructure:"variable"`
	State    string `yaml:"state" mapstructure:"state"`
	County   string `yaml:"county" mapstructure:"county"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	// Path reads the table from a local GEOID,value CSV instead of the API.
	Path string `yaml:"path" mapstructure:"path"`
}

// AnalysisConfig holds the filter, buffer and join constants.
type AnalysisConfig struct {
	WorkingCRS       int      `yaml:"working_crs" mapstructure:"working_crs"`
	BufferMiles      float64  `yaml:"buffer_miles" mapstructure:"buffer_miles"`
	BufferSegments   int      `yaml:"buffer_segments" mapstructure:"buffer_segments"`
	Keywords         []string `yaml:"keywords" mapstructure:"keywords"`
	OpenStatus       string   `yaml:"open_status" mapstructure:"open_status"`
	ZeroCountPolicy  string   `yaml:"zero_count_policy" mapstructure:"zero_count_policy"`
	StrictKeys       bool     `yaml:"strict_keys" mapstructure:"strict_keys"`
	MaxRoundTripErrM float64  `yaml:"max_round_trip_error_m" mapstructure:"max_round_trip_error_m"`
}

// WeightsConfig configures the contiguity structure.
type WeightsConfig struct {
	Precision  float64 `yaml:"precision" mapstructure:"precision"`
	ZeroPolicy bool    `yaml:"zero_policy" mapstructure:"zero_policy"`
}

// MoranConfig configures the autocorrelation tests.
type MoranConfig struct {
	Permutations int    `yaml:"permutations" mapstructure:"permutations"`
	Seed         uint64 `yaml:"seed" mapstructure:"seed"`
}

// ReportConfig configures report outputs.
type ReportConfig struct {
	MapPath      string `yaml:"map_path" mapstructure:"map_path"`
	FractionMap  string `yaml:"fraction_map_path" mapstructure:"fraction_map_path"`
	ScatterPath  string `yaml:"scatter_path" mapstructure:"scatter_path"`
	XLSXPath     string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	GeoJSONPath  string `yaml:"geojson_path" mapstructure:"geojson_path"`
	Classes      int    `yaml:"classes" mapstructure:"classes"`
	WidthInches  int    `yaml:"width_inches" mapstructure:"width_inches"`
	HeightInches int    `yaml:"height_inches" mapstructure:"height_inches"`
}

// CacheConfig configures the ACS response cache.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	TTLHours    int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// HTTPConfig configures outbound downloads.
type HTTPConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Zero-count policies for regions no buffer intersects.
const (
	ZeroCountFill = "fill"
	ZeroCountDrop = "drop"
)

// DefaultKeywords is the case-sensitive store-name allowlist. It is a crude
// stand-in for a cuisine classifier and is meant to be overridden in config.
var DefaultKeywords = []string{
	"Asian", "Oriental", "Chinese", "China", "Chinatown", "Korean", "Korea",
	"Japan", "Japanese", "Tokyo", "Mitsuwa", "H Mart", "H-Mart", "Joong Boo",
	"Viet", "Saigon", "Tai Nam", "Thai", "Filipino", "Seafood City", "Manila",
	"India", "Patel", "Bombay", "Pakistan", "Hong Kong", "Hoang", "Sun Wah",
	"Pacific", "Golden Pacific", "Halal",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// .env is optional; it only seeds the process environment.
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("accessmap")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ACCESSMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracts.source_crs", 4269)
	v.SetDefault("tracts.id_field", "GEOID")
	v.SetDefault("tracts.name_field", "NAMELSAD")
	v.SetDefault("tracts.county_fp", "031")
	v.SetDefault("tracts.tiger_year", 2019)
	v.SetDefault("tracts.temp_dir", "/tmp/accessmap")
	v.SetDefault("stores.source_crs", 4326)
	v.SetDefault("stores.id_field", "")
	v.SetDefault("stores.name_field", "STORE NAME")
	v.SetDefault("stores.status_field", "Status")
	v.SetDefault("stores.lat_field", "LATITUDE")
	v.SetDefault("stores.lon_field", "LONGITUDE")
	v.SetDefault("acs.base_url", "https://api.census.gov/data")
	v.SetDefault("acs.dataset", "acs/acs5/profile")
	v.SetDefault("acs.year", 2019)
	v.SetDefault("acs.variable", "DP05_0067PE")
	v.SetDefault("acs.state", "17")
	v.SetDefault("acs.county", "031")
	v.SetDefault("analysis.working_crs", 3435)
	v.SetDefault("analysis.buffer_miles", 1.0)
	v.SetDefault("analysis.buffer_segments", 32)
	v.SetDefault("analysis.keywords", DefaultKeywords)
	v.SetDefault("analysis.open_status", "OPEN")
	v.SetDefault("analysis.zero_count_policy", ZeroCountFill)
	v.SetDefault("analysis.strict_keys", false)
	v.SetDefault("analysis.max_round_trip_error_m", 1.0)
	v.SetDefault("weights.precision", 1e-6)
	v.SetDefault("weights.zero_policy", true)
	v.SetDefault("moran.permutations", 999)
	v.SetDefault("moran.seed", 20190101)
	v.SetDefault("report.map_path", "access_map.png")
	v.SetDefault("report.classes", 5)
	v.SetDefault("report.width_inches", 8)
	v.SetDefault("report.height_inches", 10)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.database_url", "accessmap_cache.db")
	v.SetDefault("cache.ttl_hours", 24*30)
	v.SetDefault("http.user_agent", "accessmap/1.0")
	v.SetDefault("http.timeout_secs", 60)
	v.SetDefault("http.max_retries", 3)

	// The Census key is commonly exported without the prefix.
	_ = v.BindEnv("acs.api_key", "ACCESSMAP_ACS_API_KEY", "CENSUS_API_KEY")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Keywords from the environment are comma separated so that names
	// like "H Mart" survive intact.
	if raw, ok := os.LookupEnv("ACCESSMAP_ANALYSIS_KEYWORDS"); ok {
		cfg.Analysis.Keywords = SplitList(raw)
	}

	return &cfg, nil
}

// SplitList splits a comma-separated list, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects configurations the analysis cannot run with.
func (c *Config) Validate() error {
	if c.Analysis.BufferMiles <= 0 {
		return eris.Errorf("config: analysis.buffer_miles must be positive, got %v", c.Analysis.BufferMiles)
	}
	if c.Analysis.BufferSegments < 4 {
		return eris.Errorf("config: analysis.buffer_segments must be at least 4, got %d", c.Analysis.BufferSegments)
	}
	if len(c.Analysis.Keywords) == 0 {
		return eris.New("config: analysis.keywords is empty")
	}
	switch c.Analysis.ZeroCountPolicy {
	case ZeroCountFill, ZeroCountDrop:
	default:
		return eris.Errorf("config: unknown analysis.zero_count_policy %q", c.Analysis.ZeroCountPolicy)
	}
	if c.Weights.Precision < 0 {
		return eris.New("config: weights.precision must not be negative")
	}
	if c.Moran.Permutations < 0 {
		return eris.New("config: moran.permutations must not be negative")
	}
	switch c.Cache.Driver {
	case "sqlite", "postgres", "none", "":
	default:
		return eris.Errorf("config: unknown cache.driver %q", c.Cache.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
