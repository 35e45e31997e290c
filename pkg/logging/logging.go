package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File enables a rotating log file next to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Verbose    bool
}

// New builds the process logger. Verbose forces the debug level. When
// o.File is set the rotating file writer is returned as well, nil otherwise.
func New(o Options) (*logrus.Logger, io.WriteCloser, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})

	level := logrus.InfoLevel
	if o.Level != "" {
		l, err := logrus.ParseLevel(o.Level)
		if err != nil {
			return nil, nil, err
		}
		level = l
	}
	if o.Verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	if o.File == "" {
		logger.SetOutput(os.Stdout)
		return logger, nil, nil
	}
	file := Rotating(o)
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger, file, nil
}

// Rotating returns the rotating file writer for o.File.
func Rotating(o Options) io.WriteCloser {
	maxSize := o.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := o.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	return &lumberjack.Logger{
		Filename:   o.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}
