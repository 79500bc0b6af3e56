package logging

// Format selects how a ContextLogger renders each line.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// RotationConfig mirrors the teacher's lumberjack.Logger knobs.
type RotationConfig struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// ConsoleConfig configures the stdout output.
type ConsoleConfig struct {
	Enabled bool
}

// FileConfig configures the rotating file output.
type FileConfig struct {
	Enabled  bool
	Path     string
	Rotation RotationConfig
}

// Config is the constructor input for NewContextLogger.
type Config struct {
	Level           Level
	Format          Format
	Console         ConsoleConfig
	File            FileConfig
	RedactSensitive bool
}
