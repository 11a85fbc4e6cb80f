package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds a logrus logger writing to stderr.
func (l LoggingConfig) NewLogger() (*logrus.Logger, error) {
	return l.newLogger(os.Stderr)
}

func (l LoggingConfig) newLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)

	if l.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
