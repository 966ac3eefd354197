package domain

import (
	"errors"
	"fmt"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines which backends are used by default
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`
	Events     EventsConfig     `json:"events" yaml:"events"`
	Worker     WorkerConfig     `json:"worker" yaml:"worker"`

	// Scoring pipeline
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Rules    []ReasonRule   `json:"rules" yaml:"rules"`
	Audit    AuditConfig    `json:"audit" yaml:"audit"`
	Model    ModelConfig    `json:"model" yaml:"model"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds

	// Per-client limit on /predict; zero disables limiting.
	RateLimitRPS   float64 `json:"rateLimitRps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `json:"rateLimitBurst" yaml:"rate_limit_burst"`
}

// EventsConfig controls where audit events are exported.
type EventsConfig struct {
	Log            bool   `json:"log" yaml:"log"`
	Bus            bool   `json:"bus" yaml:"bus"`
	PubSubProject  string `json:"pubsubProject" yaml:"pubsub_project"`
	PubSubTopic    string `json:"pubsubTopic" yaml:"pubsub_topic"`
	PubSubEndpoint string `json:"pubsubEndpoint" yaml:"pubsub_endpoint"`
}

// WorkerConfig controls the asynchronous claim intake worker.
type WorkerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// LabelPolicy selects how synthetic fraud labels are generated.
type LabelPolicy string

const (
	// LabelPrior draws each label independently with FraudRate.
	LabelPrior LabelPolicy = "prior"

	// LabelCoverage marks a claim fraudulent when it exceeds CoverageRatio of its
	// limit and was filed within RapidClaimDays of purchase.
	LabelCoverage LabelPolicy = "coverage"
)

// PipelineConfig parameterizes data generation, preprocessing, balancing and boosting.
type PipelineConfig struct {
	Variant string `json:"variant" yaml:"variant"`
	Seed    uint64 `json:"seed" yaml:"seed"`
	Samples int    `json:"samples" yaml:"samples"`

	// Label generation
	LabelPolicy    LabelPolicy `json:"labelPolicy" yaml:"label_policy"`
	FraudRate      float64     `json:"fraudRate" yaml:"fraud_rate"`
	CoverageRatio  float64     `json:"coverageRatio" yaml:"coverage_ratio"`
	RapidClaimDays int         `json:"rapidClaimDays" yaml:"rapid_claim_days"`

	// Vocabularies
	PolicyTypes   []string  `json:"policyTypes" yaml:"policy_types"`
	PolicyWeights []float64 `json:"policyWeights,omitempty" yaml:"policy_weights"`
	Regions       []string  `json:"regions" yaml:"regions"`
	RegionWeights []float64 `json:"regionWeights,omitempty" yaml:"region_weights"`

	// Numeric ranges, inclusive
	AgeMin      int     `json:"ageMin" yaml:"age_min"`
	AgeMax      int     `json:"ageMax" yaml:"age_max"`
	AmountMin   float64 `json:"amountMin" yaml:"amount_min"`
	AmountMax   float64 `json:"amountMax" yaml:"amount_max"`
	DaysMin     int     `json:"daysMin" yaml:"days_min"`
	DaysMax     int     `json:"daysMax" yaml:"days_max"`
	CoverageMin float64 `json:"coverageMin" yaml:"coverage_min"`
	CoverageMax float64 `json:"coverageMax" yaml:"coverage_max"`

	// Feature schema
	NumericColumns     []string `json:"numericColumns" yaml:"numeric_columns"`
	CategoricalColumns []string `json:"categoricalColumns" yaml:"categorical_columns"`

	// Class balancing
	Balance    bool `json:"balance" yaml:"balance"`
	KNeighbors int  `json:"kNeighbors" yaml:"k_neighbors"`

	// Gradient boosting
	Trees          int     `json:"trees" yaml:"trees"`
	MaxDepth       int     `json:"maxDepth" yaml:"max_depth"`
	LearningRate   float64 `json:"learningRate" yaml:"learning_rate"`
	Lambda         float64 `json:"lambda" yaml:"lambda"`
	MinChildWeight float64 `json:"minChildWeight" yaml:"min_child_weight"`
	MaxBins        int     `json:"maxBins" yaml:"max_bins"`
	Subsample      float64 `json:"subsample" yaml:"subsample"`
}

// RiskConfig holds the business thresholds for risk tiers.
// score > High is HIGH, Medium < score <= High is MEDIUM, otherwise LOW.
type RiskConfig struct {
	High   float64 `json:"high" yaml:"high"`
	Medium float64 `json:"medium" yaml:"medium"`
}

// Validate checks that the thresholds are ordered and within 0-100.
func (r RiskConfig) Validate() error {
	if r.Medium < 0 || r.High > 100 || r.Medium >= r.High {
		return fmt.Errorf("invalid risk tiers: need 0 <= medium (%.1f) < high (%.1f) <= 100", r.Medium, r.High)
	}
	return nil
}

// Signer names.
const (
	SignerHMAC   = "hmac"
	SignerDigest = "digest"
)

// AuditConfig controls integrity tagging and ledger writes.
type AuditConfig struct {
	// Signer is "hmac" (keyed) or "digest" (unkeyed SHA-256, legacy only)
	Signer string `json:"signer" yaml:"signer"`
	Secret string `json:"-" yaml:"secret"`

	// IncludeDay adds the UTC day of the record to the signed message.
	IncludeDay bool `json:"includeDay" yaml:"include_day"`

	MaxAttempts    int `json:"maxAttempts" yaml:"max_attempts"`
	RetryBackoffMs int `json:"retryBackoffMs" yaml:"retry_backoff_ms"`
}

// Validate checks the signer settings.
func (a AuditConfig) Validate() error {
	switch a.Signer {
	case SignerHMAC:
		if a.Secret == "" {
			return errors.New("audit.secret is required for the hmac signer (set KESTREL_AUDIT_SECRET)")
		}
	case SignerDigest:
	default:
		return fmt.Errorf("unsupported audit signer: %s", a.Signer)
	}
	if a.MaxAttempts < 1 {
		return fmt.Errorf("audit.max_attempts must be at least 1, got %d", a.MaxAttempts)
	}
	return nil
}

// ModelConfig locates the persisted artifacts.
type ModelConfig struct {
	Dir string `json:"dir" yaml:"dir"`

	// TrainOnMissing trains and persists a model when serve finds no usable artifacts.
	TrainOnMissing bool `json:"trainOnMissing" yaml:"train_on_missing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs with SQLite + in-process cache + channels
	TierCommunity Tier = "community"

	// TierPro runs with PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// KeralaPipeline is the default deployment: ten districts, independent 10% fraud prior.
func KeralaPipeline() PipelineConfig {
	return PipelineConfig{
		Variant:     "kerala",
		Seed:        42,
		Samples:     1500,
		LabelPolicy: LabelPrior,
		FraudRate:   0.10,
		PolicyTypes: []string{"Auto", "Property", "Health", "Travel"},
		Regions: []string{
			"Trivandrum", "Kochi", "Kozhikode", "Munnar", "Wayanad",
			"Alappuzha", "Thrissur", "Palakkad", "Kannur", "Kollam",
		},
		AgeMin:             18,
		AgeMax:             74,
		AmountMin:          500,
		AmountMax:          60000,
		DaysMin:            1,
		DaysMax:            999,
		NumericColumns:     []string{ColumnAge, ColumnClaimAmount, ColumnDaysSincePurchase},
		CategoricalColumns: []string{ColumnPolicyType, ColumnRegion},
		Balance:            true,
		KNeighbors:         5,
		Trees:              100,
		MaxDepth:           5,
		LearningRate:       0.1,
		Lambda:             1,
		MinChildWeight:     1,
		MaxBins:            64,
		Subsample:          1,
	}
}

// RegionalPipeline is the four-zone deployment with an 8% prior.
func RegionalPipeline() PipelineConfig {
	p := KeralaPipeline()
	p.Variant = "regional"
	p.Samples = 5000
	p.FraudRate = 0.08
	p.PolicyTypes = []string{"Auto", "Home", "Life"}
	p.Regions = []string{"North", "South", "East", "West"}
	p.AgeMax = 69
	p.AmountMax = 25000
	return p
}

// CoveragePipeline labels claims by the coverage rule and adds Coverage_Limit as a feature.
func CoveragePipeline() PipelineConfig {
	p := KeralaPipeline()
	p.Variant = "coverage"
	p.Samples = 2000
	p.LabelPolicy = LabelCoverage
	p.FraudRate = 0
	p.CoverageRatio = 0.7
	p.RapidClaimDays = 120
	p.PolicyTypes = []string{"Motor", "Health", "Agriculture", "Life"}
	p.Regions = []string{
		"Thiruvananthapuram", "Kollam", "Pathanamthitta", "Alappuzha", "Kottayam",
		"Idukki", "Ernakulam", "Thrissur", "Palakkad", "Malappuram",
		"Kozhikode", "Wayanad", "Kannur", "Kasaragod",
	}
	p.AmountMin = 5000
	p.AmountMax = 1500000
	p.CoverageMin = 50000
	p.CoverageMax = 2000000
	p.NumericColumns = []string{ColumnAge, ColumnClaimAmount, ColumnDaysSincePurchase, ColumnCoverageLimit}
	p.Trees = 150
	return p
}

// PipelineVariant returns the named built-in pipeline.
func PipelineVariant(name string) (PipelineConfig, error) {
	switch name {
	case "", "kerala":
		return KeralaPipeline(), nil
	case "regional":
		return RegionalPipeline(), nil
	case "coverage":
		return CoveragePipeline(), nil
	default:
		return PipelineConfig{}, fmt.Errorf("unknown pipeline variant: %s", name)
	}
}

// RequiresCoverage reports whether claims must carry Coverage_Limit.
func (p PipelineConfig) RequiresCoverage() bool {
	for _, c := range p.NumericColumns {
		if c == ColumnCoverageLimit {
			return true
		}
	}
	return p.LabelPolicy == LabelCoverage
}

// Validate checks ranges and vocabularies.
func (p PipelineConfig) Validate() error {
	switch {
	case p.Samples <= 0:
		return fmt.Errorf("pipeline.samples must be positive, got %d", p.Samples)
	case len(p.PolicyTypes) == 0 || len(p.Regions) == 0:
		return errors.New("pipeline vocabularies must not be empty")
	case len(p.PolicyWeights) > 0 && len(p.PolicyWeights) != len(p.PolicyTypes):
		return errors.New("pipeline.policy_weights must match policy_types")
	case len(p.RegionWeights) > 0 && len(p.RegionWeights) != len(p.Regions):
		return errors.New("pipeline.region_weights must match regions")
	case p.AgeMin > p.AgeMax, p.AmountMin > p.AmountMax, p.DaysMin > p.DaysMax, p.CoverageMin > p.CoverageMax:
		return errors.New("pipeline ranges must have min <= max")
	case p.DaysMin < 0:
		return errors.New("pipeline.days_min must not be negative")
	case p.FraudRate < 0 || p.FraudRate > 1:
		return fmt.Errorf("pipeline.fraud_rate must be within [0,1], got %g", p.FraudRate)
	case p.Trees <= 0 || p.MaxDepth <= 0 || p.LearningRate <= 0:
		return errors.New("pipeline.trees, max_depth and learning_rate must be positive")
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("pipeline.subsample must be within (0,1], got %g", p.Subsample)
	case len(p.NumericColumns)+len(p.CategoricalColumns) == 0:
		return errors.New("pipeline needs at least one feature column")
	}
	switch p.LabelPolicy {
	case LabelPrior:
	case LabelCoverage:
		if p.CoverageMax <= 0 {
			return errors.New("coverage label policy needs a positive coverage range")
		}
	default:
		return fmt.Errorf("unsupported label policy: %s", p.LabelPolicy)
	}
	return nil
}

// Validate checks the sections that cannot be defaulted at runtime.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if c.Model.Dir == "" {
		return errors.New("model.dir is required")
	}
	return nil
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
			RecordTTL:    3600,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Events: EventsConfig{
			Log: true,
			Bus: true,
		},
		Pipeline: KeralaPipeline(),
		Risk: RiskConfig{
			High:   70,
			Medium: 40,
		},
		Rules: DefaultReasonRules(),
		Audit: AuditConfig{
			Signer:         SignerHMAC,
			IncludeDay:     true,
			MaxAttempts:    3,
			RetryBackoffMs: 50,
		},
		Model: ModelConfig{
			Dir: "./model",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       60,
		RecordTTL:      3600,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
