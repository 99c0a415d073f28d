package logger

// Console implements a console based logger. Console output always goes to
// stderr so results written to stdout stay machine readable.
type Console struct {
	Enabled          bool `mapstructure:"enabled"`
	UseConsoleWriter bool `mapstructure:"pretty"`
}

// LogFile implements a rolling file based logger.
type LogFile struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`

	ErrorLog string `mapstructure:"error"`
	InfoLog  string `mapstructure:"info"`

	MaxSize    int  `mapstructure:"max_size"` // megabytes
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"` // days
	Compress   bool `mapstructure:"compress"`
}

// Log implements the logger config.
type Log struct {
	Level        string `mapstructure:"level"` // trace, debug, info, warn, error.
	ReportCaller bool   `mapstructure:"report_caller"`

	Console Console `mapstructure:"console"`
	File    LogFile `mapstructure:"file"`
}
