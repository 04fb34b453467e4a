package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wordmine/wordmine/internal/distractor"
	"github.com/wordmine/wordmine/internal/economy"
	"github.com/wordmine/wordmine/internal/review"
	"github.com/wordmine/wordmine/internal/srs"
	"github.com/wordmine/wordmine/internal/survey"
)

// Config is the full application configuration loaded from YAML with
// environment variable overrides.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Vocab      VocabConfig      `yaml:"vocab"`
	Survey     SurveyConfig     `yaml:"survey"`
	Distractor DistractorConfig `yaml:"distractor"`
	SM2        SM2Config        `yaml:"sm2"`
	FSRS       FSRSConfig       `yaml:"fsrs"`
	Economy    EconomyConfig    `yaml:"economy"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port                   int `yaml:"port"`
	ReadTimeoutSeconds     int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds     int `yaml:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
	RateLimitPerMinute     int `yaml:"rate_limit_per_minute"`
	RateLimitBurst         int `yaml:"rate_limit_burst"`
}

// ReadTimeout returns the read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	DSN                 string `yaml:"dsn"`
	MaxOpenConns        int    `yaml:"max_open_conns"`
	QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
}

// QueryTimeout returns the per-query timeout as a duration.
func (d DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutSeconds) * time.Second
}

// RedisConfig holds Redis settings for survey session storage. An empty
// Addr selects the in-memory session store.
type RedisConfig struct {
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
}

// SessionTTL returns the survey session lifetime as a duration.
func (r RedisConfig) SessionTTL() time.Duration {
	return time.Duration(r.SessionTTLMinutes) * time.Minute
}

// VocabConfig holds vocabulary snapshot settings.
type VocabConfig struct {
	SnapshotPath        string `yaml:"snapshot_path"`
	GraphURL            string `yaml:"graph_url"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
}

// FetchTimeout returns the graph fetch timeout as a duration.
func (v VocabConfig) FetchTimeout() time.Duration {
	return time.Duration(v.FetchTimeoutSeconds) * time.Second
}

// SurveyConfig holds the survey stopping and sampling knobs.
type SurveyConfig struct {
	MinQuestions         int     `yaml:"min_questions"`
	MaxQuestions         int     `yaml:"max_questions"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	MinSamplesPerBand    int     `yaml:"min_samples_per_band"`
	TargetSamplesPerBand int     `yaml:"target_samples_per_band"`
	RecentWindow         int     `yaml:"recent_window"`
}

// DistractorConfig holds the deck-building knobs.
type DistractorConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	FillerRadius        int     `yaml:"filler_radius"`
	MaxTargets          int     `yaml:"max_targets"`
	MaxTraps            int     `yaml:"max_traps"`
}

// SM2Config holds the SM-2+ scheduler knobs.
type SM2Config struct {
	EaseMin          float64 `yaml:"ease_min"`
	EaseMax          float64 `yaml:"ease_max"`
	EaseDefault      float64 `yaml:"ease_default"`
	IntervalMaxDays  int     `yaml:"interval_max_days"`
	InitialIntervals []int   `yaml:"initial_intervals"`
}

// FSRSConfig holds the FSRS scheduler knobs.
type FSRSConfig struct {
	TargetRetention float64 `yaml:"target_retention"`
	IntervalMaxDays int     `yaml:"interval_max_days"`
}

// EconomyConfig holds the currency and level knobs.
type EconomyConfig struct {
	LevelEnergy        map[int]int64 `yaml:"level_energy"`
	LevelEnergyDefault int64         `yaml:"level_energy_default"`
}

// AssignmentConfig holds the algorithm assignment knobs.
type AssignmentConfig struct {
	FSRSProbability        float64 `yaml:"fsrs_probability"`
	MinReviewsForMigration int64   `yaml:"min_reviews_for_migration"`
}

// AdminConfig holds operator-only settings.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// Default returns the production configuration. Domain defaults come from
// the packages that own them.
func Default() *Config {
	sv := survey.DefaultConfig()
	dk := distractor.DefaultConfig()
	s2 := srs.DefaultSM2Config()
	fs := srs.DefaultFSRSConfig()
	ec := economy.DefaultConfig()
	as := review.DefaultAssignmentConfig()

	return &Config{
		Server: ServerConfig{
			Port:                   8080,
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    15,
			IdleTimeoutSeconds:     60,
			ShutdownTimeoutSeconds: 10,
			RateLimitPerMinute:     120,
			RateLimitBurst:         30,
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			MaxOpenConns:        10,
			QueryTimeoutSeconds: 5,
		},
		Redis: RedisConfig{SessionTTLMinutes: 1440},
		Vocab: VocabConfig{
			SnapshotPath:        "data/vocab_snapshot.json",
			FetchTimeoutSeconds: 10,
		},
		Survey: SurveyConfig{
			MinQuestions:         sv.MinQuestions,
			MaxQuestions:         sv.MaxQuestions,
			ConfidenceThreshold:  sv.ConfidenceThreshold,
			MinSamplesPerBand:    sv.MinSamplesPerBand,
			TargetSamplesPerBand: sv.TargetSamplesPerBand,
			RecentWindow:         sv.RecentWindow,
		},
		Distractor: DistractorConfig{
			SimilarityThreshold: dk.SimilarityThreshold,
			FillerRadius:        dk.FillerRadius,
			MaxTargets:          dk.MaxTargets,
			MaxTraps:            dk.MaxTraps,
		},
		SM2: SM2Config{
			EaseMin:          s2.EaseMin,
			EaseMax:          s2.EaseMax,
			EaseDefault:      s2.EaseDefault,
			IntervalMaxDays:  s2.IntervalMax,
			InitialIntervals: s2.InitialIntervals,
		},
		FSRS: FSRSConfig{
			TargetRetention: fs.TargetRetention,
			IntervalMaxDays: fs.IntervalMax,
		},
		Economy: EconomyConfig{
			LevelEnergy:        ec.LevelEnergy,
			LevelEnergyDefault: ec.LevelEnergyDefault,
		},
		Assignment: AssignmentConfig{
			FSRSProbability:        as.FSRSProbability,
			MinReviewsForMigration: as.MinReviewsForMigration,
		},
	}
}

// Load reads the configuration file, applies environment overrides and
// validates the result. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("WORDMINE_CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if snapshot := os.Getenv("VOCAB_SNAPSHOT"); snapshot != "" {
		cfg.Vocab.SnapshotPath = snapshot
	}
	if graphURL := os.Getenv("VOCAB_GRAPH_URL"); graphURL != "" {
		cfg.Vocab.GraphURL = graphURL
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = val
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if token := os.Getenv("WORDMINE_ADMIN_TOKEN"); token != "" {
		cfg.Admin.Token = token
	}
}

// Validate checks the configuration for values the services would reject.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Survey.MinQuestions <= 0 {
		return fmt.Errorf("survey min_questions must be positive")
	}
	if c.Survey.MaxQuestions < c.Survey.MinQuestions {
		return fmt.Errorf("survey max_questions %d below min_questions %d",
			c.Survey.MaxQuestions, c.Survey.MinQuestions)
	}
	if c.Survey.ConfidenceThreshold <= 0 || c.Survey.ConfidenceThreshold > 1 {
		return fmt.Errorf("survey confidence_threshold %v outside (0,1]", c.Survey.ConfidenceThreshold)
	}
	if c.Distractor.SimilarityThreshold <= 0 || c.Distractor.SimilarityThreshold >= 1 {
		return fmt.Errorf("distractor similarity_threshold %v outside (0,1)", c.Distractor.SimilarityThreshold)
	}
	if c.SM2.EaseMin <= 0 || c.SM2.EaseMax <= c.SM2.EaseMin {
		return fmt.Errorf("sm2 ease bounds [%v, %v] invalid", c.SM2.EaseMin, c.SM2.EaseMax)
	}
	if len(c.SM2.InitialIntervals) == 0 {
		return fmt.Errorf("sm2 initial_intervals must not be empty")
	}
	if c.SM2.IntervalMaxDays <= 0 {
		return fmt.Errorf("sm2 interval_max_days must be positive")
	}
	if c.FSRS.TargetRetention <= 0 || c.FSRS.TargetRetention >= 1 {
		return fmt.Errorf("fsrs target_retention %v outside (0,1)", c.FSRS.TargetRetention)
	}
	if c.FSRS.IntervalMaxDays <= 0 {
		return fmt.Errorf("fsrs interval_max_days must be positive")
	}
	if c.Economy.LevelEnergyDefault <= 0 {
		return fmt.Errorf("economy level_energy_default must be positive")
	}
	if c.Assignment.FSRSProbability < 0 || c.Assignment.FSRSProbability > 1 {
		return fmt.Errorf("assignment fsrs_probability %v outside [0,1]", c.Assignment.FSRSProbability)
	}
	if c.Assignment.MinReviewsForMigration <= 0 {
		return fmt.Errorf("assignment min_reviews_for_migration must be positive")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database max_open_conns must be positive")
	}
	if c.Database.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("database query_timeout_seconds must be positive")
	}
	return nil
}

// SurveyEngine maps the survey section onto the engine configuration.
func (c *Config) SurveyEngine() survey.Config {
	return survey.Config{
		MinQuestions:         c.Survey.MinQuestions,
		MaxQuestions:         c.Survey.MaxQuestions,
		ConfidenceThreshold:  c.Survey.ConfidenceThreshold,
		MinSamplesPerBand:    c.Survey.MinSamplesPerBand,
		TargetSamplesPerBand: c.Survey.TargetSamplesPerBand,
		RecentWindow:         c.Survey.RecentWindow,
	}
}

// DeckBuilder maps the distractor section onto the deck engine configuration.
func (c *Config) DeckBuilder() distractor.Config {
	return distractor.Config{
		SimilarityThreshold: c.Distractor.SimilarityThreshold,
		FillerRadius:        c.Distractor.FillerRadius,
		MaxTargets:          c.Distractor.MaxTargets,
		MaxTraps:            c.Distractor.MaxTraps,
	}
}

// SM2Scheduler maps the sm2 section onto the scheduler configuration.
func (c *Config) SM2Scheduler() srs.SM2Config {
	return srs.SM2Config{
		EaseMin:          c.SM2.EaseMin,
		EaseMax:          c.SM2.EaseMax,
		EaseDefault:      c.SM2.EaseDefault,
		IntervalMax:      c.SM2.IntervalMaxDays,
		InitialIntervals: c.SM2.InitialIntervals,
	}
}

// FSRSScheduler maps the fsrs section onto the adapter configuration.
func (c *Config) FSRSScheduler() srs.FSRSConfig {
	return srs.FSRSConfig{
		TargetRetention: c.FSRS.TargetRetention,
		IntervalMax:     c.FSRS.IntervalMaxDays,
	}
}

// EconomyRules maps the economy section onto the service configuration.
func (c *Config) EconomyRules() economy.Config {
	return economy.Config{
		LevelEnergy:        c.Economy.LevelEnergy,
		LevelEnergyDefault: c.Economy.LevelEnergyDefault,
	}
}

// AssignmentRules maps the assignment section onto the service configuration.
func (c *Config) AssignmentRules() review.AssignmentConfig {
	return review.AssignmentConfig{
		FSRSProbability:        c.Assignment.FSRSProbability,
		MinReviewsForMigration: c.Assignment.MinReviewsForMigration,
	}
}
