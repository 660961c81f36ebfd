package config

// LoggingConfig contains logging-related configuration options.
type LoggingConfig struct {
	Format LogFormat `toml:"format"`
	Level  LogLevel  `toml:"level"`
}

// LogFormat represents the logging output format.
type LogFormat string

// LogLevel represents the logging verbosity level.
type LogLevel string

const (
	LogFormatUnspecified LogFormat = ""
	LogFormatText        LogFormat = "text"
	LogFormatJSON        LogFormat = "json"
)

const (
	LogLevelUnspecified LogLevel = ""
	LogLevelTrace       LogLevel = "trace"
	LogLevelDebug       LogLevel = "debug"
	LogLevelInfo        LogLevel = "info"
	LogLevelWarn        LogLevel = "warn"
	LogLevelError       LogLevel = "error"
)

// String returns the string representation of LogFormat.
func (f LogFormat) String() string {
	return string(f)
}

// String returns the string representation of LogLevel.
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the LogFormat is valid.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatUnspecified, LogFormatText, LogFormatJSON:
		return true
	default:
		return false
	}
}

// IsValid checks if the LogLevel is valid.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelUnspecified, LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}
