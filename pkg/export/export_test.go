package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/ledger"
	"github.com/qrdesk/qrdesk/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (m *memorySink) Preflight(context.Context) error { return m.err }

func (m *memorySink) Write(_ context.Context, run, name string, data []byte) error {
	if m.err != nil {
		return m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.files == nil {
		m.files = make(map[string][]byte, 2)
	}

	m.files[run+"/"+name] = data

	return nil
}

func (m *memorySink) String() string { return "memory" }

func setupLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	return ledger.New(log, st)
}

func TestExporter_Run(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	head := domain.NewStaffSession(domain.RoleHeadCashier)

	for i := range 3 {
		_, err := l.CreateItem(ctx, head, domain.ItemDraft{
			Name:        fmt.Sprintf("Item %d", i),
			ClientName:  "Ivanov",
			ClientPhone: "+7900",
		})
		require.NoError(t, err)
	}

	items, err := l.VisibleItems(ctx, head)
	require.NoError(t, err)

	_, err = l.IssueItem(ctx, head, items[0].ID)
	require.NoError(t, err)

	a, b := &memorySink{}, &memorySink{}

	e := NewExporter(logrus.New(), l, []Sink{a, b})
	e.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := e.Run(ctx, domain.NewStaffSession(domain.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, &Result{Run: "1700000000", Active: 2, Archived: 1, Sinks: 2}, res)

	for _, sink := range []*memorySink{a, b} {
		require.Len(t, sink.files, 2)

		var snap Snapshot
		require.NoError(t, json.Unmarshal(sink.files["1700000000/"+ArchiveFile], &snap))
		assert.Equal(t, "archive", snap.Collection)
		assert.Equal(t, 1, snap.Count)
		assert.Equal(t, domain.StatusIssued, snap.Items[0].Status)

		require.NoError(t, json.Unmarshal(sink.files["1700000000/"+ItemsFile], &snap))
		assert.Equal(t, 2, snap.Count)
	}
}

func TestExporter_RequiresAdmin(t *testing.T) {
	sink := &memorySink{}
	e := NewExporter(logrus.New(), setupLedger(t), []Sink{sink})

	_, err := e.Run(context.Background(), domain.NewStaffSession(domain.RoleHeadCashier))
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, sink.files)
}

func TestExporter_SinkFailure(t *testing.T) {
	boom := errors.New("boom")
	e := NewExporter(logrus.New(), setupLedger(t), []Sink{&memorySink{err: boom}})

	_, err := e.Run(context.Background(), domain.NewStaffSession(domain.RoleAdmin))
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, e.Preflight(context.Background()), boom)
}

func TestNewSinks(t *testing.T) {
	log := logrus.New()

	_, err := NewSinks(log, &config.ExportConfig{})
	require.Error(t, err)

	sinks, err := NewSinks(log, &config.ExportConfig{
		Local: &config.LocalExportConfig{Enabled: true, Dir: t.TempDir()},
		S3:    &config.S3ExportConfig{Enabled: true, Bucket: "ledger"},
	})
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "s3://ledger/qrdesk/exports", sinks[1].String())

	_, err = NewSinks(log, &config.ExportConfig{
		S3: &config.S3ExportConfig{Enabled: true},
	})
	require.Error(t, err)
}
