package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all worker configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Scheduler  SchedulerConfig
	Reconcile  ReconcileConfig
	Similarity SimilarityConfig
	Routing    RoutingConfig
	Archive    ArchiveConfig
	Telemetry  TelemetryConfig
	Sources    []SourceConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console; empty picks json when app.env is production
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// AutoMigrate applies the embedded migrations when the worker starts
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds the admin HTTP surface configuration
type HTTPConfig struct {
	Enabled        bool
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	// OperationTimeout bounds one POST /ops/:operation call
	OperationTimeout time.Duration
	// Token, when set, is required as a bearer token on /ops
	Token string
}

// SchedulerConfig holds the sync trigger configuration
type SchedulerConfig struct {
	Enabled bool
	// Schedule is a cron spec; "@every 5m" by default
	Schedule string
	// Budget bounds one source run
	Budget time.Duration
	// LockTTL is the run lock lease; it must outlive Budget
	LockTTL       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	// MaxConcurrentSources caps parallel source runs per tick
	MaxConcurrentSources int
}

// ReconcileConfig holds the ledger reconciler settings
type ReconcileConfig struct {
	LegacyCutoffYear  int
	NumberWindowDays  int
	AmountWindowDays  int
	CurrencyRounding  string
	ExpandVATVariants bool
	// OwnPartnerIDs are the company's own partner records; they are never written
	OwnPartnerIDs []string
}

// SimilarityConfig holds the name and description similarity thresholds
type SimilarityConfig struct {
	NameStrict    float64
	NameSecondary float64
	Description   float64
}

// RoutingConfig holds the multi-tenant routing policy
type RoutingConfig struct {
	Enabled                  bool
	PrimaryTenantID          string
	SecondaryTenantID        string
	NoTaxIDToSecondary       bool
	ExemptToSecondary        bool
	NeverInvoicedToSecondary bool
	NonInvoiceRule           string
}

// ArchiveConfig holds the raw payload archive (S3-compatible object storage)
type ArchiveConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	Logs              bool    // Also export zap logs to the collector
	TraceDB           bool    // Trace gorm queries
	SlowQuery         time.Duration

	// Continuous profiling (Pyroscope)
	ProfilingEnabled bool
	PyroscopeAddress string
}

// SourceConfig describes one configured upstream source
type SourceConfig struct {
	ID       string `mapstructure:"id" validate:"required,max=64"`
	Type     string `mapstructure:"type" validate:"required,oneof=qnb bizimhesap xmlfeed spreadsheet"`
	Enabled  bool   `mapstructure:"enabled"`
	TenantID string `mapstructure:"tenant_id" validate:"omitempty,uuid"`
	// StartDate is YYYY-MM-DD; the first run lists from here
	StartDate string `mapstructure:"start_date" validate:"omitempty,datetime=2006-01-02"`

	// Streams are "kind:direction" pairs, e.g. "invoice:incoming"
	Streams            []string `mapstructure:"streams" validate:"dive,required"`
	IncomingWindowDays int      `mapstructure:"incoming_window_days" validate:"gte=0"`
	OutgoingWindowDays int      `mapstructure:"outgoing_window_days" validate:"gte=0"`

	CreatePartners bool `mapstructure:"create_partners"`
	CreateProducts bool `mapstructure:"create_products"`
	AsCustomer     bool `mapstructure:"as_customer"`
	AsSupplier     bool `mapstructure:"as_supplier"`

	Credentials Credentials     `mapstructure:"credentials"`
	QNB         QNBConfig       `mapstructure:"qnb"`
	BizimHesap  BizimHesapConf  `mapstructure:"bizimhesap"`
	Feed        FeedConfig      `mapstructure:"feed"`
	Spreadsheet SpreadsheetConf `mapstructure:"spreadsheet"`
	Update      UpdateConfig    `mapstructure:"update"`

	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// Credentials are the upstream secrets of a source
type Credentials struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	APIKey       string `mapstructure:"api_key"`
	TokenURL     string `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// QNBConfig holds the e-document gateway settings
type QNBConfig struct {
	Environment string `mapstructure:"environment" validate:"omitempty,oneof=test production"`
	Endpoint    string `mapstructure:"endpoint" validate:"omitempty,url"`
	VKN         string `mapstructure:"vkn"`
	PageSize    int    `mapstructure:"page_size"`
	MaxPages    int    `mapstructure:"max_pages"`
	FetchPDF    bool   `mapstructure:"fetch_pdf"`
}

// BizimHesapConf holds the bookkeeping API settings
type BizimHesapConf struct {
	BaseURL   string `mapstructure:"base_url" validate:"omitempty,url"`
	Warehouse string `mapstructure:"warehouse"`
}

// FeedConfig holds the XML product feed settings
type FeedConfig struct {
	URL      string        `mapstructure:"url" validate:"omitempty,url"`
	Template string        `mapstructure:"template"`
	RootPath string        `mapstructure:"root_path"`
	Mappings []FeedMapping `mapstructure:"mappings" validate:"dive"`
	Pricing  FeedPricing   `mapstructure:"pricing"`
	MinStock int           `mapstructure:"min_stock" validate:"gte=0"`
	MinPrice float64       `mapstructure:"min_price" validate:"gte=0"`
	MaxPrice float64       `mapstructure:"max_price" validate:"gte=0"`
	// VariantAttribute receives the "BASE (VARIANT)" values of created products
	VariantAttribute string `mapstructure:"variant_attribute"`
	SupplierID       string `mapstructure:"supplier_id" validate:"omitempty,uuid"`
}

// FeedMapping is one row of the feed field mapping table
type FeedMapping struct {
	Target    string `mapstructure:"target" validate:"required"`
	Path      string `mapstructure:"path" validate:"required"`
	Transform string `mapstructure:"transform"`
	Regex     string `mapstructure:"regex"`
	Replace   string `mapstructure:"replace"`
	Default   string `mapstructure:"default"`
	Required  bool   `mapstructure:"required"`
}

// FeedPricing is the markup applied to feed prices
type FeedPricing struct {
	Type     string  `mapstructure:"type" validate:"omitempty,oneof=percent fixed both"`
	Percent  float64 `mapstructure:"percent" validate:"gte=0"`
	Fixed    float64 `mapstructure:"fixed" validate:"gte=0"`
	Rounding string  `mapstructure:"rounding" validate:"omitempty,oneof=none 99 90 00"`
}

// UpdateConfig holds the product update flags
type UpdateConfig struct {
	Price       *bool `mapstructure:"update_price"`
	Stock       *bool `mapstructure:"update_stock"`
	Images      bool  `mapstructure:"update_images"`
	Description bool  `mapstructure:"update_description"`
	OnlyIfValue *bool `mapstructure:"update_only_if_value"`
	// ZeroStock is "deactivate" or "keep"
	ZeroStock string `mapstructure:"zero_stock" validate:"omitempty,oneof=deactivate keep"`
}

// SpreadsheetConf holds the voucher workbook settings
type SpreadsheetConf struct {
	Path       string                    `mapstructure:"path"`
	Sheet      string                    `mapstructure:"sheet"`
	AccountMap map[string]AccountMapping `mapstructure:"account_map"`
}

// AccountMapping rewrites one exported account code
type AccountMapping struct {
	Code        string `mapstructure:"code"`
	Name        string `mapstructure:"name"`
	PartnerName string `mapstructure:"partner_name"`
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with EDIRE_ prefix (e.g., EDIRE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/edire")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}
	return fromViper(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("EDIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			Enabled:          !v.IsSet("http.enabled") || v.GetBool("http.enabled"),
			Addr:             v.GetString("http.addr"),
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			OperationTimeout: v.GetDuration("http.operation_timeout"),
			Token:            v.GetString("http.token"),
		},
		Scheduler: SchedulerConfig{
			Enabled:              !v.IsSet("scheduler.enabled") || v.GetBool("scheduler.enabled"),
			Schedule:             v.GetString("scheduler.schedule"),
			Budget:               v.GetDuration("scheduler.budget"),
			LockTTL:              v.GetDuration("scheduler.lock_ttl"),
			RetryAttempts:        v.GetInt("scheduler.retry_attempts"),
			RetryDelay:           v.GetDuration("scheduler.retry_delay"),
			RetryMaxDelay:        v.GetDuration("scheduler.retry_max_delay"),
			MaxConcurrentSources: v.GetInt("scheduler.max_concurrent_sources"),
		},
		Reconcile: ReconcileConfig{
			LegacyCutoffYear:  v.GetInt("reconcile.legacy_cutoff_year"),
			NumberWindowDays:  v.GetInt("reconcile.number_window_days"),
			AmountWindowDays:  v.GetInt("reconcile.amount_window_days"),
			CurrencyRounding:  v.GetString("reconcile.currency_rounding"),
			ExpandVATVariants: !v.IsSet("reconcile.expand_vat_variants") || v.GetBool("reconcile.expand_vat_variants"),
			OwnPartnerIDs:     v.GetStringSlice("reconcile.own_partner_ids"),
		},
		Similarity: SimilarityConfig{
			NameStrict:    v.GetFloat64("similarity.name_strict"),
			NameSecondary: v.GetFloat64("similarity.name_secondary"),
			Description:   v.GetFloat64("similarity.description"),
		},
		Routing: RoutingConfig{
			Enabled:                  v.GetBool("routing.enabled"),
			PrimaryTenantID:          v.GetString("routing.primary_tenant_id"),
			SecondaryTenantID:        v.GetString("routing.secondary_tenant_id"),
			NoTaxIDToSecondary:       v.GetBool("routing.no_tax_id_to_secondary"),
			ExemptToSecondary:        v.GetBool("routing.exempt_to_secondary"),
			NeverInvoicedToSecondary: v.GetBool("routing.never_invoiced_to_secondary"),
			NonInvoiceRule:           v.GetString("routing.non_invoice_rule"),
		},
		Archive: ArchiveConfig{
			Enabled:      v.GetBool("archive.enabled"),
			Endpoint:     v.GetString("archive.endpoint"),
			Region:       v.GetString("archive.region"),
			Bucket:       v.GetString("archive.bucket"),
			AccessKey:    v.GetString("archive.access_key"),
			SecretKey:    v.GetString("archive.secret_key"),
			UseSSL:       v.GetBool("archive.use_ssl"),
			UsePathStyle: !v.IsSet("archive.use_path_style") || v.GetBool("archive.use_path_style"),
			Prefix:       v.GetString("archive.prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			Logs:              v.GetBool("telemetry.logs"),
			TraceDB:           v.GetBool("telemetry.trace_db"),
			SlowQuery:         v.GetDuration("telemetry.slow_query"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
		},
	}

	if err := v.UnmarshalKey("sources", &cfg.Sources); err != nil {
		return nil, fmt.Errorf("error decoding sources: %w", err)
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "edire"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "edire"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8081"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.OperationTimeout == 0 {
		cfg.HTTP.OperationTimeout = 4 * time.Minute
	}
	if cfg.Scheduler.Schedule == "" {
		cfg.Scheduler.Schedule = "@every 5m"
	}
	if cfg.Scheduler.Budget == 0 {
		cfg.Scheduler.Budget = 45 * time.Second
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = 2 * cfg.Scheduler.Budget
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Scheduler.RetryMaxDelay == 0 {
		cfg.Scheduler.RetryMaxDelay = 8 * time.Second
	}
	if cfg.Scheduler.MaxConcurrentSources == 0 {
		cfg.Scheduler.MaxConcurrentSources = 4
	}
	if cfg.Reconcile.LegacyCutoffYear == 0 {
		cfg.Reconcile.LegacyCutoffYear = 2025
	}
	if cfg.Reconcile.NumberWindowDays == 0 {
		cfg.Reconcile.NumberWindowDays = 7
	}
	if cfg.Reconcile.AmountWindowDays == 0 {
		cfg.Reconcile.AmountWindowDays = 3
	}
	if cfg.Reconcile.CurrencyRounding == "" {
		cfg.Reconcile.CurrencyRounding = "0.01"
	}
	if cfg.Similarity.NameStrict == 0 {
		cfg.Similarity.NameStrict = 0.80
	}
	if cfg.Similarity.NameSecondary == 0 {
		cfg.Similarity.NameSecondary = 0.70
	}
	if cfg.Similarity.Description == 0 {
		cfg.Similarity.Description = 0.50
	}
	if cfg.Routing.NonInvoiceRule == "" {
		cfg.Routing.NonInvoiceRule = "both"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "raw"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.SlowQuery == 0 {
		cfg.Telemetry.SlowQuery = 200 * time.Millisecond
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
}

var sourceValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Scheduler.LockTTL < c.Scheduler.Budget {
		return fmt.Errorf("scheduler.lock_ttl (%s) must not be shorter than scheduler.budget (%s)",
			c.Scheduler.LockTTL, c.Scheduler.Budget)
	}

	for name, th := range map[string]float64{
		"similarity.name_strict":    c.Similarity.NameStrict,
		"similarity.name_secondary": c.Similarity.NameSecondary,
		"similarity.description":    c.Similarity.Description,
	} {
		if th <= 0 || th > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %f", name, th)
		}
	}

	if c.Routing.Enabled && c.Routing.SecondaryTenantID == "" {
		return fmt.Errorf("routing.secondary_tenant_id is required when routing is enabled")
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when the archive is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.HTTP.Enabled && c.HTTP.Token == "" {
			return fmt.Errorf("http.token is required in production")
		}
	}

	if c.Telemetry.ProfilingEnabled && c.Telemetry.PyroscopeAddress == "" {
		return fmt.Errorf("telemetry.pyroscope_address is required when profiling is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if err := s.validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d]: duplicate source id %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	return nil
}

// ErrSourceStream is returned for a malformed "kind:direction" stream
var ErrSourceStream = errors.New("stream must be kind:direction")

func (s *SourceConfig) validate() error {
	if err := sourceValidator.Struct(s); err != nil {
		return err
	}
	for _, stream := range s.Streams {
		if _, _, ok := strings.Cut(stream, ":"); !ok {
			return fmt.Errorf("%w: %q", ErrSourceStream, stream)
		}
	}
	switch s.Type {
	case "xmlfeed":
		if s.Feed.URL == "" {
			return fmt.Errorf("source %s: feed.url is required", s.ID)
		}
	case "spreadsheet":
		if s.Spreadsheet.Path == "" {
			return fmt.Errorf("source %s: spreadsheet.path is required", s.ID)
		}
	}
	return nil
}

// EnabledSources returns the sources switched on
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
