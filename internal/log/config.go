package log

// Config configures the logger.
type Config struct {
	Level   string     `mapstructure:"level" yaml:"level"`     // trace / debug / info / warn / error
	Format  string     `mapstructure:"format" yaml:"format"`   // text / json
	Pattern string     `mapstructure:"pattern" yaml:"pattern"` // text format only
	Time    string     `mapstructure:"time" yaml:"time"`       // Go time layout
	File    FileConfig `mapstructure:"file" yaml:"file"`
}

// FileConfig configures the rotating file output.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

const (
	DefaultPattern = "%time [%level] %msg %field%n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

// DefaultConfig logs text at info level to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:   "info",
		Format:  "text",
		Pattern: DefaultPattern,
		Time:    DefaultTime,
	}
}
