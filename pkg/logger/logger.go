package logger

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

/* Public */

// Init configures the global logger. verbosity maps to levels:
// 0 = info, 1 = debug, 2+ = trace. When logFilePath is set, log output
// is mirrored to a rotating file.
func Init(verbosity int, logFilePath string) error {
	// set level
	switch {
	case verbosity >= 2:
		logrus.SetLevel(logrus.TraceLevel)
	case verbosity == 1:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	// set formatter
	logrus.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ForceFormatting:  true,
		QuoteEmptyFields: true,
	})

	// set output
	if logFilePath != "" {
		fileLog := &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
		}

		logrus.SetOutput(io.MultiWriter(os.Stdout, fileLog))
	} else {
		logrus.SetOutput(os.Stdout)
	}

	return nil
}

// GetLogger returns a logger entry with the given prefix.
func GetLogger(prefix string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"prefix": prefix})
}
