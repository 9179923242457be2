// Package worker archives audit notifications consumed from the
// broker. Each message is appended as one NDJSON line, giving an
// external audit trail that survives store resets and imports.
package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"billbook/internal/events"
	applog "billbook/internal/log"
)

// AuditWorker appends consumed audit messages to an NDJSON file.
type AuditWorker struct {
	mu     sync.Mutex
	path   string
	logger *applog.Logger
}

// NewAuditWorker creates a worker writing to path, creating the parent
// directory if needed.
func NewAuditWorker(path string, logger *applog.Logger) (*AuditWorker, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	}
	return &AuditWorker{path: path, logger: logger}, nil
}

// Handle appends one message. Used as the consume callback; an error
// requeues the delivery.
func (w *AuditWorker) Handle(msg *events.AuditMessage) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode audit message: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}

	w.logger.Debug("Archived audit message",
		applog.FieldAction, msg.Action,
		applog.FieldEntityKind, msg.EntityKind,
		applog.FieldEntityID, msg.EntityID)
	return nil
}
