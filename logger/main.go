// Package logger sets up the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrNoLogDir is returned when file logging is enabled without a directory.
var ErrNoLogDir = errors.New("config log.file.path can not be empty")

// LevelWriter splits logs into info and error outputs.
// Warnings and everything above go to the error writer.
type LevelWriter struct {
	io.Writer
	ErrorWriter io.Writer
	InfoWriter  io.Writer
}

// WriteLevel implements zerolog.LevelWriter.
func (lw *LevelWriter) WriteLevel(l zerolog.Level, p []byte) (n int, err error) {
	if l == zerolog.Disabled {
		return 0, nil
	}
	w := lw.InfoWriter
	if l >= zerolog.WarnLevel && l != zerolog.NoLevel {
		w = lw.ErrorWriter
	}
	return w.Write(p) //nolint:wrapcheck
}

// Init the zerolog logger.
// Depending on the config it enables the console logger, the file logger,
// both or none.
func Init(cfg Log) error {
	return initWith(cfg, os.Stderr)
}

func initWith(cfg Log, console io.Writer) error {
	var (
		logLevel, err = zerolog.ParseLevel(cfg.Level)
		writers       []io.Writer
		stack         bool
	)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("loglevel %s is not supported", cfg.Level))
	}

	// use zerolog stack marshal func if trace level is set
	if logLevel == zerolog.TraceLevel {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack //nolint:reassign
		stack = true
	}
	zerolog.SetGlobalLevel(logLevel)

	ph := NewPrometheusHook()

	if cfg.Console.Enabled {
		writers = append(writers, NewConsoleWriter(cfg, console))
	}
	if cfg.File.Enabled {
		w, err := newRollingFile(cfg)
		if err != nil {
			return err
		}
		writers = append(writers, w)
	}

	mw := zerolog.MultiLevelWriter(writers...)
	switch {
	case cfg.ReportCaller && stack:
		log.Logger = zerolog.New(mw).Hook(ph).With().Timestamp().Stack().Logger()
	case cfg.ReportCaller:
		log.Logger = zerolog.New(mw).Hook(ph).With().Timestamp().Caller().Logger()
	default:
		log.Logger = zerolog.New(mw).Hook(ph).With().Timestamp().Logger()
	}
	return nil
}

// newRollingFile uses LevelWriter and lumberjack to create file based logs.
func newRollingFile(cfg Log) (io.Writer, error) {
	if cfg.File.Path == "" {
		return nil, ErrNoLogDir
	}
	if err := os.MkdirAll(cfg.File.Path, 0o750); err != nil { //nolint: mnd
		return nil, errors.Wrap(err, "can't create log directory")
	}
	infoLog, errorLog := cfg.File.InfoLog, cfg.File.ErrorLog
	if infoLog == "" {
		infoLog = "zonediff.log"
	}
	if errorLog == "" {
		errorLog = "zonediff.error.log"
	}

	return &LevelWriter{
		ErrorWriter: &lumberjack.Logger{
			Filename:   path.Join(cfg.File.Path, errorLog),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		},
		InfoWriter: &lumberjack.Logger{
			Filename:   path.Join(cfg.File.Path, infoLog),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		},
	}, nil
}

// NewConsoleWriter creates the console writer, human readable when
// UseConsoleWriter is set and JSON otherwise.
func NewConsoleWriter(cfg Log, out io.Writer) io.Writer {
	if cfg.Console.UseConsoleWriter {
		return zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    false,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}
	return out
}
