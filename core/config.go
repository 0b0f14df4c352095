package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		Name          string
		DisableTLS    bool
		Path          string // sqlite only
	}

	CacheConfig struct {
		Backend       string // memory | redis
		TTL           time.Duration
		RedisAddr     string
		RedisPassword string
		RedisDB       int
	}

	SchedulerConfig struct {
		AttendanceReminder string
		DailyReport        string
		WeeklySummary      string
	}

	TracingConfig struct {
		Enabled  bool
		Endpoint string
	}

	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		Cache     CacheConfig
		Scheduler SchedulerConfig
		Tracing   TracingConfig

		defaultFromEmail mail.Address
		adminEmail       mail.Address
	}
)

func (c *Config) DefaultFromEmail() mail.Address { return c.defaultFromEmail }
func (c *Config) AdminEmail() mail.Address       { return c.adminEmail }

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// NewConfig loads the configuration of the current ENV (DEV by default) from the environment,
// after loading `config/.env.<env>` if it exists.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("app_name", "Shule")
	v.SetDefault("secret_key", "h4&n!2x0s9=%ts^k(1o@j5b8l_b$6e!y%3dqj#wz0p)k+4=u-c")
	v.SetDefault("frontend_base_url", "http://localhost:8080")
	v.SetDefault("default_from_email", "admin@school.com")
	v.SetDefault("admin_email", "admin@school.com")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server_host", "0.0.0.0:8000")
	v.SetDefault("server_debug_host", "0.0.0.0:4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("server_jwt_expiration_delta", 15*time.Minute)
	v.SetDefault("server_jwt_refresh_expiration_delta", 24*time.Hour)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_user", "shule")
	v.SetDefault("database_password", "shule")
	v.SetDefault("database_admin_user", "postgres")
	v.SetDefault("database_admin_password", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "shule")
	v.SetDefault("database_disable_tls", true)
	v.SetDefault("database_path", "shule.db")

	v.SetDefault("cache_backend", "memory")
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("cache_redis_addr", "localhost:6379")
	v.SetDefault("cache_redis_password", "")
	v.SetDefault("cache_redis_db", 0)

	v.SetDefault("scheduler_attendance_reminder", "0 8 * * *")
	v.SetDefault("scheduler_daily_report", "0 18 * * *")
	v.SetDefault("scheduler_weekly_summary", "0 17 * * 5")

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_endpoint", "localhost:4318")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("test_mode"),
		AppName:                   v.GetString("app_name"),
		SecretKey:                 v.GetString("secret_key"),
		FrontendBaseURL:           v.GetString("frontend_base_url"),
		SendgridApiKey:            v.GetString("sendgrid_api_key"),
		RollbarToken:              v.GetString("rollbar_token"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		Server: ServerConfig{
			Host:                      v.GetString("server_host"),
			DebugHost:                 v.GetString("server_debug_host"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("server_jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("server_jwt_refresh_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_admin_user"),
			AdminPassword: v.GetString("database_admin_password"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			DisableTLS:    v.GetBool("database_disable_tls"),
			Path:          v.GetString("database_path"),
		},
		Cache: CacheConfig{
			Backend:       v.GetString("cache_backend"),
			TTL:           v.GetDuration("cache_ttl"),
			RedisAddr:     v.GetString("cache_redis_addr"),
			RedisPassword: v.GetString("cache_redis_password"),
			RedisDB:       v.GetInt("cache_redis_db"),
		},
		Scheduler: SchedulerConfig{
			AttendanceReminder: v.GetString("scheduler_attendance_reminder"),
			DailyReport:        v.GetString("scheduler_daily_report"),
			WeeklySummary:      v.GetString("scheduler_weekly_summary"),
		},
		Tracing: TracingConfig{
			Enabled:  v.GetBool("tracing_enabled"),
			Endpoint: v.GetString("tracing_endpoint"),
		},
	}
	conf.defaultFromEmail = parseAddress(v.GetString("default_from_email"), conf.AppName)
	conf.adminEmail = parseAddress(v.GetString("admin_email"), conf.AppName+" Admin")
	if err := conf.check(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

// check rejects settings the services cannot run with.
func (c *Config) check() error {
	if c.Cache.TTL <= 0 {
		return errors.Errorf("CACHE_TTL must be positive (got %s)", c.Cache.TTL)
	}
	return nil
}

// NewTestConfig returns the configuration used by tests: no I/O, fixed secrets.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "Shule",
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:8080",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: ServerConfig{
			Host:                      "localhost:8000",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        15 * time.Minute,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "sqlite"},
		Cache:    CacheConfig{Backend: "memory", TTL: time.Hour},
		Scheduler: SchedulerConfig{
			AttendanceReminder: "0 8 * * *",
			DailyReport:        "0 18 * * *",
			WeeklySummary:      "0 17 * * 5",
		},
		defaultFromEmail: mail.Address{Name: "Shule", Address: "admin@school.com"},
		adminEmail:       mail.Address{Name: "Shule Admin", Address: "admin@school.com"},
	}
}

func parseAddress(s, fallbackName string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		log.Fatalf("config.mail.ParseAddress(%s): %v", s, err)
	}
	if addr.Name == "" {
		addr.Name = fallbackName
	}
	return *addr
}
