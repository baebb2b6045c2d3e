// Package am holds tidebell's runtime configuration, loaded through Viper
// from a config file and TIDEBELL_-prefixed environment variables.
package am

// Config represents the core tidebell configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Instance  InstanceConfig  `mapstructure:"instance"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the tidebell web server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SchedulerConfig configures the dynamic scheduler and its firing pool
type SchedulerConfig struct {
	// Workers is the number of concurrent firing workers (default: 4)
	Workers int `mapstructure:"workers"`
	// QueueSize bounds the firing queue; submissions beyond it are dropped
	// with a warning rather than blocking a timer (default: 64)
	QueueSize int `mapstructure:"queue_size"`
}

// RedisConfig configures the delivery bridge's broadcast medium.
// When Enabled is false the in-process medium is used, which is only
// meaningful for single-instance deployments.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// InstanceConfig identifies this process instance in logs
type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

// DefaultServerPort is used when no port is configured.
const DefaultServerPort = 8320
