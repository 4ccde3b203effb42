package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	EtherCAT EtherCATConfig `mapstructure:"ethercat"`
	Profiles ProfilesConfig `mapstructure:"slave_profiles"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv           string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL         time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL        time.Duration `mapstructure:"refresh_token_ttl"`
	MaxFailedLoginAttempts int           `mapstructure:"max_failed_login_attempts"`
	AccountLockDuration    time.Duration `mapstructure:"account_lock_duration"`
	Argon2MemoryKiB        uint32        `mapstructure:"argon2_memory_kib"`
	Argon2Iterations       uint32        `mapstructure:"argon2_iterations"`
	Argon2Parallelism      uint8         `mapstructure:"argon2_parallelism"`
}

type EtherCATConfig struct {
	MasterIndex         uint          `mapstructure:"master_index"`
	CyclePeriod         time.Duration `mapstructure:"cycle_period"`
	MaxIncompleteCycles int           `mapstructure:"max_incomplete_cycles"`
	Mode                string        `mapstructure:"mode"` // "simulated" or "native"
	SimSlaves           []SimSlave    `mapstructure:"sim_slaves"`
}

// SimSlave seeds the simulated bus when mode is "simulated".
type SimSlave struct {
	Position    uint16 `mapstructure:"position"`
	VendorID    uint32 `mapstructure:"vendor_id"`
	ProductCode uint32 `mapstructure:"product_code"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Defaults setzen
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("ethercat.master_index", 0)
	viper.SetDefault("ethercat.cycle_period", "10ms")
	viper.SetDefault("ethercat.max_incomplete_cycles", 5)
	viper.SetDefault("ethercat.mode", "simulated")

	// Auth Defaults
	viper.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	viper.SetDefault("auth.access_token_ttl", "60m")
	viper.SetDefault("auth.refresh_token_ttl", "168h")
	viper.SetDefault("auth.max_failed_login_attempts", 5)
	viper.SetDefault("auth.account_lock_duration", "15m")
	viper.SetDefault("auth.argon2_memory_kib", 64*1024)
	viper.SetDefault("auth.argon2_iterations", 3)
	viper.SetDefault("auth.argon2_parallelism", 0) // 0 = NumCPU

	// Environment Variables automatisch binden (Viper Feature)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("OFC") // Environment Variables mit Prefix OFC_

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != "dev-secret-change-in-production-min-32-chars" && len(secret) >= 32
}
