// Copyright 2025 NetApp, Inc. All Rights Reserved.

package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/netapp/msgbus/config"
)

const (
	TextFormat             = "text"
	JSONFormat             = "json"
	defaultTimestampFormat = time.RFC3339
	MaxLogEntryLength      = 64000
)

// InitLogging configures logrus to write through a ConsoleHook only.  Debug through warning
// entries go to stdout, everything more severe goes to stderr.
func InitLogging(logFormat string) error {
	// No output except for the hooks
	log.SetOutput(io.Discard)

	logConsoleHook, err := NewConsoleHook(logFormat)
	if err != nil {
		return fmt.Errorf("could not initialize logging to console: %v", err)
	}
	log.AddHook(logConsoleHook)

	log.WithFields(log.Fields{
		"logLevel":  log.GetLevel().String(),
		"logFormat": logFormat,
		"buildTime": config.BuildTime,
		"version":   config.OrchestratorVersion,
	}).Debug("Initialized logging.")

	return nil
}

// InitLogLevel configures the logging level.  The debug flag takes precedence if set,
// otherwise the logLevel flag (debug, info, warn, error, fatal) is used.
func InitLogLevel(debug bool, logLevel string) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}
	return nil
}

// InitLogFormat configures the log format, allowing a choice of text or JSON.
func InitLogFormat(logFormat string) error {
	switch logFormat {
	case TextFormat:
		log.SetFormatter(&log.TextFormatter{})
	case JSONFormat:
		log.SetFormatter(&JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format: %s", logFormat)
	}
	return nil
}

// ConsoleHook sends log entries to stdout.
type ConsoleHook struct {
	formatter log.Formatter
	stdout    io.Writer
	stderr    io.Writer
}

// NewConsoleHook creates a new log hook for writing to stdout/stderr.
func NewConsoleHook(logFormat string) (*ConsoleHook, error) {
	var formatter log.Formatter

	switch logFormat {
	case TextFormat:
		formatter = &log.TextFormatter{FullTimestamp: true}
	case JSONFormat:
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format: %s", logFormat)
	}

	return &ConsoleHook{formatter: formatter, stdout: os.Stdout, stderr: os.Stderr}, nil
}

func (hook *ConsoleHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook *ConsoleHook) checkIfTerminal(w io.Writer) bool {
	switch v := w.(type) {
	case *os.File:
		return terminal.IsTerminal(int(v.Fd()))
	default:
		return false
	}
}

func (hook *ConsoleHook) Fire(entry *log.Entry) error {
	// Determine output stream
	var logWriter io.Writer
	switch entry.Level {
	case log.TraceLevel, log.DebugLevel, log.InfoLevel, log.WarnLevel:
		logWriter = hook.stdout
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		logWriter = hook.stderr
	default:
		return fmt.Errorf("unknown log level: %v", entry.Level)
	}

	if textFormatter, ok := hook.formatter.(*log.TextFormatter); ok {
		textFormatter.ForceColors = hook.checkIfTerminal(logWriter)
	}

	lineBytes, err := hook.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(hook.stderr, "Unable to read entry, %v", err)
		return err
	}
	if len(lineBytes) > MaxLogEntryLength {
		if _, err := logWriter.Write(lineBytes[:MaxLogEntryLength]); err != nil {
			return err
		}
		if _, err = logWriter.Write([]byte("<truncated>\n")); err != nil {
			return err
		}
	} else {
		if _, err := logWriter.Write(lineBytes); err != nil {
			return err
		}
	}

	return nil
}

// JSONFormatter renders every field as a string so errors survive encoding.
type JSONFormatter struct {
	// TimestampFormat sets the format used for marshaling timestamps.
	TimestampFormat string
	// DisableTimestamp allows disabling automatic timestamps in output
	DisableTimestamp bool
	// PrettyPrint will indent all json logs
	PrettyPrint bool
}

func (f *JSONFormatter) Format(entry *log.Entry) ([]byte, error) {
	data := make(map[string]string, len(entry.Data)+4)
	for k, v := range entry.Data {
		switch v := v.(type) {
		case error:
			// Otherwise errors are ignored by `encoding/json`
			// https://github.com/sirupsen/logrus/issues/137
			data[k] = v.Error()
		default:
			data[k] = fmt.Sprintf("%+v", v)
		}
	}

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = defaultTimestampFormat
	}

	if !f.DisableTimestamp {
		data["@timestamp"] = entry.Time.Format(timestampFormat)
	}
	data["message"] = entry.Message
	data["level"] = entry.Level.String()

	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	encoder := json.NewEncoder(b)
	if f.PrettyPrint {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to marshal fields to JSON, %v", err)
	}

	return b.Bytes(), nil
}
