package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Seed          SeedConfig
	Maintenance   MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SMARTACCESS_APP_ENV" required:"true"`
	Port         string `envconfig:"SMARTACCESS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SMARTACCESS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SMARTACCESS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SMARTACCESS_DB_DSN"`
	Driver string `envconfig:"SMARTACCESS_DB_DRIVER" default:"postgres"`

	// SQLitePath is used instead of the DSN when the sqlite feature flag is on.
	SQLitePath string `envconfig:"SMARTACCESS_DB_SQLITE_PATH" default:"smartaccess.db"`

	Host     string `envconfig:"SMARTACCESS_DB_HOST"`
	Port     int    `envconfig:"SMARTACCESS_DB_PORT" default:"5432"`
	User     string `envconfig:"SMARTACCESS_DB_USER"`
	Password string `envconfig:"SMARTACCESS_DB_PASSWORD"`
	Name     string `envconfig:"SMARTACCESS_DB_NAME"`
	SSLMode  string `envconfig:"SMARTACCESS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SMARTACCESS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SMARTACCESS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SMARTACCESS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SMARTACCESS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SMARTACCESS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SMARTACCESS_REDIS_ADDR"`
	Password     string        `envconfig:"SMARTACCESS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SMARTACCESS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SMARTACCESS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SMARTACCESS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SMARTACCESS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SMARTACCESS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SMARTACCESS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SMARTACCESS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SMARTACCESS_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SMARTACCESS_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SMARTACCESS_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SMARTACCESS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SMARTACCESS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SMARTACCESS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SMARTACCESS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SMARTACCESS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SMARTACCESS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginUsernameLimit int           `envconfig:"SMARTACCESS_AUTH_RATE_LIMIT_LOGIN_USERNAME_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"SMARTACCESS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SMARTACCESS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SMARTACCESS_AUTO_MIGRATE" default:"false"`
}

type SeedConfig struct {
	FixturesPath string `envconfig:"SMARTACCESS_SEED_FIXTURES"`
}

type MaintenanceConfig struct {
	Interval           time.Duration `envconfig:"SMARTACCESS_MAINTENANCE_INTERVAL" default:"1h"`
	AuditRetentionDays int           `envconfig:"SMARTACCESS_AUDIT_RETENTION_DAYS" default:"365"`
	RepairBatchSize    int           `envconfig:"SMARTACCESS_PROFILE_REPAIR_BATCH" default:"200"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
