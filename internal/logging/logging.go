// Package logging wires up the server's structured logger: a single
// logrus.Logger writing to stdout and, per §6, one file per run at
// ./logs/{YYYY-MM-DD_HH-MM}.log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the shared handle passed to the Hub, Sessions, heartbeat
// clients and config loader; the World takes no logger.
type Logger = logrus.Logger

// New creates the run's logger, creating ./logs if needed and opening
// a new timestamped log file alongside stdout.
func New(dir string) (*Logger, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logging: create %s: %w", dir, err)
	}

	name := time.Now().Format("2006-01-02_15-04") + ".log"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", path, err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.SetLevel(logrus.DebugLevel)

	return log, f, nil
}
