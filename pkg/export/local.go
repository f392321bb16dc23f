package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/sirupsen/logrus"
)

type localSink struct {
	log   logrus.FieldLogger
	cfg   *config.LocalExportConfig
	owner *owner
}

// Ensure interface compliance.
var _ Sink = (*localSink)(nil)

// NewLocalSink creates a sink writing below cfg.Dir. Files and run
// directories are chowned to cfg.Owner when set.
func NewLocalSink(log logrus.FieldLogger, cfg *config.LocalExportConfig) (Sink, error) {
	o, err := parseOwner(cfg.Owner)
	if err != nil {
		return nil, err
	}

	return &localSink{
		log:   log.WithField("component", "local-sink"),
		cfg:   cfg,
		owner: o,
	}, nil
}

func (l *localSink) String() string {
	return "local:" + l.cfg.Dir
}

// Preflight creates the export directory and checks it is writable.
func (l *localSink) Preflight(_ context.Context) error {
	if err := os.MkdirAll(l.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	f, err := os.CreateTemp(l.cfg.Dir, ".qrdesk-write-test-*")
	if err != nil {
		return fmt.Errorf("export dir not writable: %w", err)
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}

func (l *localSink) Write(_ context.Context, run, name string, data []byte) error {
	dir := filepath.Join(l.cfg.Dir, run)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}

	l.owner.chown(dir)

	path := filepath.Join(dir, name)

	// Write then rename so readers never see a partial snapshot.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}

	l.owner.chown(path)

	l.log.WithField("path", path).Debug("Snapshot written")

	return nil
}
