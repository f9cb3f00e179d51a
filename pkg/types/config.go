package types

import (
	"time"
)

// Mode constants for gateway operation
const (
	ModeLocal  = "local"  // In-memory storage, no Redis
	ModeRemote = "remote" // Postgres + Redis
)

// AppConfig is the root configuration for the mailflow gateway
type AppConfig struct {
	Mode       string `key:"mode" json:"mode"`
	DebugMode  bool   `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool   `key:"prettyLogs" json:"pretty_logs"`

	Database       DatabaseConfig       `key:"database" json:"database"`
	Gateway        GatewayConfig        `key:"gateway" json:"gateway"`
	OAuth          OAuthConfig          `key:"oauth" json:"oauth"`
	Mailbox        MailboxConfig        `key:"mailbox" json:"mailbox"`
	Classification ClassificationConfig `key:"classification" json:"classification"`
	Engine         EngineConfig         `key:"engine" json:"engine"`
	Scheduler      SchedulerConfig      `key:"scheduler" json:"scheduler"`
	Security       SecurityConfig       `key:"security" json:"security"`
	Archive        ArchiveConfig        `key:"archive" json:"archive"`
}

// IsLocalMode returns true if running in local mode (no Redis/Postgres)
func (c *AppConfig) IsLocalMode() bool {
	return c.Mode == ModeLocal
}

// ----------------------------------------------------------------------------
// Database Configuration
// ----------------------------------------------------------------------------

type DatabaseConfig struct {
	Redis    RedisConfig    `key:"redis" json:"redis"`
	Postgres PostgresConfig `key:"postgres" json:"postgres"`
}

type RedisMode string

const (
	RedisModeSingle  RedisMode = "single"
	RedisModeCluster RedisMode = "cluster"
)

type RedisConfig struct {
	Mode               RedisMode     `key:"mode" json:"mode"`
	Addrs              []string      `key:"addrs" json:"addrs"`
	Username           string        `key:"username" json:"username"`
	Password           string        `key:"password" json:"password"`
	ClientName         string        `key:"clientName" json:"client_name"`
	EnableTLS          bool          `key:"enableTLS" json:"enable_tls"`
	InsecureSkipVerify bool          `key:"insecureSkipVerify" json:"insecure_skip_verify"`
	PoolSize           int           `key:"poolSize" json:"pool_size"`
	MinIdleConns       int           `key:"minIdleConns" json:"min_idle_conns"`
	DialTimeout        time.Duration `key:"dialTimeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `key:"readTimeout" json:"read_timeout"`
	WriteTimeout       time.Duration `key:"writeTimeout" json:"write_timeout"`
	MaxRetries         int           `key:"maxRetries" json:"max_retries"`
}

// IsConfigured returns true if at least one Redis address is set
func (c RedisConfig) IsConfigured() bool {
	return len(c.Addrs) > 0 && c.Addrs[0] != ""
}

type PostgresConfig struct {
	Host            string        `key:"host" json:"host"`
	Port            int           `key:"port" json:"port"`
	User            string        `key:"user" json:"user"`
	Password        string        `key:"password" json:"password"`
	Database        string        `key:"database" json:"database"`
	SSLMode         string        `key:"sslMode" json:"ssl_mode"`
	MaxOpenConns    int           `key:"maxOpenConns" json:"max_open_conns"`
	MaxIdleConns    int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
}

// ----------------------------------------------------------------------------
// Gateway Configuration
// ----------------------------------------------------------------------------

type GatewayConfig struct {
	HTTP            HTTPConfig    `key:"http" json:"http"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`
	AuthToken       string        `key:"authToken" json:"auth_token"`
	JWTSecret       string        `key:"jwtSecret" json:"jwt_secret"`
}

type HTTPConfig struct {
	Host             string     `key:"host" json:"host"`
	Port             int        `key:"port" json:"port"`
	EnablePrettyLogs bool       `key:"enablePrettyLogs" json:"enable_pretty_logs"`
	CORS             CORSConfig `key:"cors" json:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `key:"allowOrigins" json:"allow_origins"`
	AllowedMethods []string `key:"allowMethods" json:"allow_methods"`
	AllowedHeaders []string `key:"allowHeaders" json:"allow_headers"`
}

// ----------------------------------------------------------------------------
// Mailbox / OAuth Configuration
// ----------------------------------------------------------------------------

type OAuthConfig struct {
	Google      GoogleOAuthConfig `key:"google" json:"google"`
	RefreshSkew time.Duration     `key:"refreshSkew" json:"refresh_skew"`
	CacheSize   int               `key:"cacheSize" json:"cache_size"`
	CacheTTL    time.Duration     `key:"cacheTTL" json:"cache_ttl"`
	LockTTL     time.Duration     `key:"lockTTL" json:"lock_ttl"`
}

type GoogleOAuthConfig struct {
	ClientID     string `key:"clientId" json:"client_id"`
	ClientSecret string `key:"clientSecret" json:"client_secret"`
	TokenURL     string `key:"tokenUrl" json:"token_url"`
}

type MailboxConfig struct {
	BaseURL           string        `key:"baseUrl" json:"base_url"`
	RequestsPerSecond float64       `key:"requestsPerSecond" json:"requests_per_second"`
	Burst             int           `key:"burst" json:"burst"`
	Timeout           time.Duration `key:"timeout" json:"timeout"`
}

// ----------------------------------------------------------------------------
// Classification Configuration
// ----------------------------------------------------------------------------

const (
	ClassifierProviderOpenAI  = "openai"
	ClassifierProviderKeyword = "keyword"
	ClassifierProviderOffline = "offline"
)

type ClassificationConfig struct {
	Offline      bool          `key:"offline" json:"offline"`
	Provider     string        `key:"provider" json:"provider"`
	BaseURL      string        `key:"baseUrl" json:"base_url"`
	APIKey       string        `key:"apiKey" json:"api_key"`
	Model        string        `key:"model" json:"model"`
	Timeout      time.Duration `key:"timeout" json:"timeout"`
	MaxBodyChars int           `key:"maxBodyChars" json:"max_body_chars"`
}

// ----------------------------------------------------------------------------
// Engine Configuration
// ----------------------------------------------------------------------------

type EngineConfig struct {
	RunTimeout      time.Duration `key:"runTimeout" json:"run_timeout"`
	FetchWorkers    int           `key:"fetchWorkers" json:"fetch_workers"`
	ClassifyWorkers int           `key:"classifyWorkers" json:"classify_workers"`
	Retry           RetryConfig   `key:"retry" json:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `key:"maxAttempts" json:"max_attempts"`
	BaseDelay   time.Duration `key:"baseDelay" json:"base_delay"`
	MaxDelay    time.Duration `key:"maxDelay" json:"max_delay"`
	Jitter      float64       `key:"jitter" json:"jitter"`
}

type SchedulerConfig struct {
	Enabled      bool          `key:"enabled" json:"enabled"`
	PollInterval time.Duration `key:"pollInterval" json:"poll_interval"`
	Workers      int           `key:"workers" json:"workers"`
	BatchSize    int           `key:"batchSize" json:"batch_size"`
	LockTTL      time.Duration `key:"lockTTL" json:"lock_ttl"`
}

// ----------------------------------------------------------------------------
// Security / Storage Configuration
// ----------------------------------------------------------------------------

type SecurityConfig struct {
	// SecretKey seals stored credentials; 32 bytes, base64 encoded
	SecretKey string `key:"secretKey" json:"secret_key"`
}

type S3Config struct {
	Bucket         string `key:"bucket" json:"bucket"`
	Region         string `key:"region" json:"region"`
	Endpoint       string `key:"endpoint" json:"endpoint"`
	AccessKey      string `key:"accessKey" json:"access_key"`
	SecretKey      string `key:"secretKey" json:"secret_key"`
	ForcePathStyle bool   `key:"forcePathStyle" json:"force_path_style"`
}

type ArchiveConfig struct {
	Enabled bool     `key:"enabled" json:"enabled"`
	Prefix  string   `key:"prefix" json:"prefix"`
	S3      S3Config `key:"s3" json:"s3"`
}
