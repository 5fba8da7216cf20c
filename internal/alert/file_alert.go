package alert

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultAlertFile       = "alerts.log"
	DefaultAlertMaxSizeMB  = 10
	DefaultAlertMaxBackups = 3
)

// FileAlertNotifier appends one JSON object per alert to a size-rotated file
type FileAlertNotifier struct {
	mu     sync.Mutex
	out    io.WriteCloser
	logger *logrus.Logger
}

// NewFileAlertNotifier opens a rotating alert log
func NewFileAlertNotifier(path string, maxSizeMB, maxBackups int, logger *logrus.Logger) *FileAlertNotifier {
	if path == "" {
		path = DefaultAlertFile
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultAlertMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = DefaultAlertMaxBackups
	}

	return NewWriterAlertNotifier(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}, logger)
}

// NewWriterAlertNotifier writes alert lines to any writer
func NewWriterAlertNotifier(out io.WriteCloser, logger *logrus.Logger) *FileAlertNotifier {
	return &FileAlertNotifier{
		out:    out,
		logger: logger,
	}
}

// SendAlert implements Notifier interface - appends the alert as a JSON line
func (fn *FileAlertNotifier) SendAlert(alert model.Alert) error {
	line, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	line = append(line, '\n')

	fn.mu.Lock()
	defer fn.mu.Unlock()

	if _, err := fn.out.Write(line); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}

func (fn *FileAlertNotifier) Close() error {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.out.Close()
}
