// Package export writes JSON snapshots of the item ledger to local disk
// and object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/ledger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Snapshot file names.
const (
	ItemsFile   = "items.json"
	ArchiveFile = "archive.json"
)

// MinRole is the minimum role allowed to export.
const MinRole = domain.RoleAdmin

// Sink stores snapshot files.
type Sink interface {
	// Preflight verifies the target is reachable and writable.
	Preflight(ctx context.Context) error
	// Write stores data as name inside the run directory.
	Write(ctx context.Context, run, name string, data []byte) error
	// String describes the target for logs.
	String() string
}

// Snapshot is the content of one exported file.
type Snapshot struct {
	ExportedAt time.Time     `json:"exported_at"`
	Collection string        `json:"collection"`
	Count      int           `json:"count"`
	Items      []domain.Item `json:"items"`
}

// Result summarises a completed export.
type Result struct {
	Run      string `json:"run"`
	Active   int    `json:"active"`
	Archived int    `json:"archived"`
	Sinks    int    `json:"sinks"`
}

// Exporter snapshots the ledger into every configured sink.
type Exporter struct {
	log    logrus.FieldLogger
	ledger *ledger.Ledger
	sinks  []Sink
	now    func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(log logrus.FieldLogger, l *ledger.Ledger, sinks []Sink) *Exporter {
	return &Exporter{
		log:    log.WithField("component", "export"),
		ledger: l,
		sinks:  sinks,
		now:    time.Now,
	}
}

// NewSinks builds the sinks enabled in cfg.
func NewSinks(log logrus.FieldLogger, cfg *config.ExportConfig) ([]Sink, error) {
	sinks := make([]Sink, 0, 2)

	if cfg.Local != nil && cfg.Local.Enabled {
		s, err := NewLocalSink(log, cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("creating local sink: %w", err)
		}

		sinks = append(sinks, s)
	}

	if cfg.S3 != nil && cfg.S3.Enabled {
		s, err := NewS3Sink(log, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("creating s3 sink: %w", err)
		}

		sinks = append(sinks, s)
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no export target enabled")
	}

	return sinks, nil
}

// Preflight checks every sink concurrently.
func (e *Exporter) Preflight(ctx context.Context) error {
	return Preflight(ctx, e.sinks)
}

// Preflight checks every sink concurrently without exporting anything.
func Preflight(ctx context.Context, sinks []Sink) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, sink := range sinks {
		g.Go(func() error {
			if err := sink.Preflight(gctx); err != nil {
				return fmt.Errorf("preflight %s: %w", sink, err)
			}

			return nil
		})
	}

	return g.Wait()
}

// Run reads both collections as seen by s and writes them to every sink.
func (e *Exporter) Run(ctx context.Context, s *domain.Session) (*Result, error) {
	if err := domain.Authorize(s, MinRole); err != nil {
		return nil, err
	}

	var active, archived []domain.Item

	rg, rctx := errgroup.WithContext(ctx)

	rg.Go(func() error {
		items, err := e.ledger.VisibleItems(rctx, s)
		active = items

		return err
	})

	rg.Go(func() error {
		items, err := e.ledger.VisibleArchive(rctx, s)
		archived = items

		return err
	})

	if err := rg.Wait(); err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	now := e.now().UTC()
	run := strconv.FormatInt(now.Unix(), 10)

	files := make(map[string][]byte, 2)

	for name, snap := range map[string]Snapshot{
		ItemsFile:   {ExportedAt: now, Collection: "active", Count: len(active), Items: active},
		ArchiveFile: {ExportedAt: now, Collection: "archive", Count: len(archived), Items: archived},
	} {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", name, err)
		}

		files[name] = data
	}

	wg, wctx := errgroup.WithContext(ctx)

	for _, sink := range e.sinks {
		for name, data := range files {
			wg.Go(func() error {
				if err := sink.Write(wctx, run, name, data); err != nil {
					return fmt.Errorf("writing %s to %s: %w", name, sink, err)
				}

				return nil
			})
		}
	}

	if err := wg.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Run:      run,
		Active:   len(active),
		Archived: len(archived),
		Sinks:    len(e.sinks),
	}

	e.log.WithFields(logrus.Fields{
		"by":       s.Identity,
		"run":      res.Run,
		"active":   res.Active,
		"archived": res.Archived,
		"sinks":    res.Sinks,
	}).Info("Ledger exported")

	return res, nil
}
