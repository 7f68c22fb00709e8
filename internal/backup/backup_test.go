package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/dbtest"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/models"
	"github.com/fullpos/license-server/internal/syncengine"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeMirror struct {
	mu      sync.Mutex
	uploads []models.Backup
	err     error
}

func (m *fakeMirror) Upload(_ context.Context, b models.Backup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, b)
	return m.err
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	clock   *dbtest.Clock
	metrics *metrics.Registry
	mirror  *fakeMirror
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithDB(t, dbtest.Open(t))
}

func newFixtureWithDB(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	clock := dbtest.NewClock(t0)
	m := metrics.NewRegistry()
	mirror := &fakeMirror{}
	svc := NewService(db, DefaultRetention, mirror, m)
	svc.SetClock(clock.Now)
	return &fixture{svc: svc, db: db, clock: clock, metrics: m, mirror: mirror}
}

func access(company, device string) *syncengine.Access {
	return &syncengine.Access{LicenseID: "lic-" + company, CompanyID: company, DeviceID: device}
}

func (f *fixture) push(t *testing.T, a *syncengine.Access, seq int) *Saved {
	t.Helper()
	f.clock.Advance(time.Minute)
	saved, err := f.svc.Push(context.Background(), a, []byte(fmt.Sprintf(`{"seq":%d,"device":%q}`, seq, a.DeviceID)))
	require.NoError(t, err)
	return saved
}

func seqOf(t *testing.T, raw json.RawMessage) int {
	t.Helper()
	var body struct {
		Seq int `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Seq
}

func TestPushKeepsNewestPerCompany(t *testing.T) {
	f := newFixture(t)
	a := access("company-a", "pos-1")
	other := access("company-b", "pos-9")

	f.push(t, other, 100)
	for i := 1; i <= 12; i++ {
		f.push(t, a, i)
	}
	f.svc.Wait()

	var rows []models.Backup
	require.NoError(t, f.db.Where("company_id = ?", "company-a").Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, DefaultRetention)
	assert.Equal(t, 3, seqOf(t, json.RawMessage(rows[0].BackupJSON)))
	assert.Equal(t, 12, seqOf(t, json.RawMessage(rows[len(rows)-1].BackupJSON)))

	var n int64
	require.NoError(t, f.db.Model(&models.Backup{}).Where("company_id = ?", "company-b").Count(&n).Error)
	assert.Equal(t, int64(1), n, "retention is scoped to the pushing company")

	assert.Equal(t, 13.0, testutil.ToFloat64(f.metrics.BackupsTotal.WithLabelValues("push")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.BackupsTotal.WithLabelValues("pruned")))
	assert.Len(t, f.mirror.uploads, 13)
}

func TestPushCountsAllDevicesTowardRetention(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 6; i++ {
		f.push(t, access("company-a", "pos-1"), i)
		f.push(t, access("company-a", "pos-2"), 100+i)
	}

	var n int64
	require.NoError(t, f.db.Model(&models.Backup{}).Where("company_id = ?", "company-a").Count(&n).Error)
	assert.Equal(t, int64(DefaultRetention), n)
}

func assertRetentionUnderConcurrency(t *testing.T, f *fixture, company string) {
	t.Helper()
	a := access(company, "pos-1")
	for i := 0; i < DefaultRetention; i++ {
		f.push(t, a, i)
	}

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		seq := 100 + i
		g.Go(func() error {
			_, err := f.svc.Push(context.Background(), a, []byte(fmt.Sprintf(`{"seq":%d}`, seq)))
			return err
		})
	}
	require.NoError(t, g.Wait())

	var n int64
	require.NoError(t, f.db.Model(&models.Backup{}).Where("company_id = ?", company).Count(&n).Error)
	assert.Equal(t, int64(DefaultRetention), n)
}

func TestConcurrentPushesKeepRetention(t *testing.T) {
	f := newFixture(t)
	tn := dbtest.NewTenant(t, f.db, "FP-BACK-0002", "pos-1", t0)
	assertRetentionUnderConcurrency(t, f, tn.Company.ID)
}

func TestPushRejectsNonObjects(t *testing.T) {
	f := newFixture(t)
	a := access("company-a", "pos-1")

	for _, body := range []string{"", "  ", "[1,2]", "42", `"text"`, "null", "{broken"} {
		_, err := f.svc.Push(context.Background(), a, []byte(body))
		require.Error(t, err, "body %q", body)
		assert.True(t, errors.Is(err, apperr.ErrBadRequest), "body %q", body)
	}

	var n int64
	require.NoError(t, f.db.Model(&models.Backup{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, f.mirror.uploads)
}

func TestPushStoresSize(t *testing.T) {
	f := newFixture(t)
	saved, err := f.svc.Push(context.Background(), access("company-a", "pos-1"), []byte(` {"a":1} `))
	require.NoError(t, err)
	assert.True(t, saved.CreatedAt.Equal(t0))

	var b models.Backup
	require.NoError(t, f.db.First(&b, "id = ?", saved.ID).Error)
	assert.Equal(t, 7, b.SizeBytes)
	assert.JSONEq(t, `{"a":1}`, string(b.BackupJSON))
}

func TestPullPrefersDeviceThenCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Pull(ctx, access("company-a", "pos-1"))
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 404, apperr.StatusOf(err))

	f.push(t, access("company-a", "pos-1"), 1)
	f.push(t, access("company-a", "pos-2"), 2)
	f.push(t, access("company-b", "pos-1"), 3)

	snap, err := f.svc.Pull(ctx, access("company-a", "pos-1"))
	require.NoError(t, err)
	assert.Equal(t, "pos-1", snap.DeviceID)
	assert.Equal(t, 1, seqOf(t, snap.BackupJSON))

	snap, err = f.svc.Pull(ctx, access("company-a", "pos-nueva"))
	require.NoError(t, err)
	assert.Equal(t, "pos-2", snap.DeviceID, "a reinstalled device restores the company's latest backup")
	assert.Equal(t, 2, seqOf(t, snap.BackupJSON))

	_, err = f.svc.Pull(ctx, access("company-c", "pos-1"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := access("company-a", "pos-1")

	var saved []*Saved
	for i := 1; i <= 4; i++ {
		saved = append(saved, f.push(t, a, i))
	}
	f.push(t, access("company-a", "pos-2"), 5)

	entries, err := f.svc.History(ctx, a, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, saved[3].ID, entries[0].ID)
	assert.Equal(t, saved[0].ID, entries[3].ID)
	assert.Equal(t, "pos-1", entries[0].DeviceID)

	entries, err = f.svc.History(ctx, a, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = f.svc.History(ctx, a, -3)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "backup_json")

	entries, err = f.svc.History(ctx, access("company-a", "pos-sin-backups"), 10)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: 50, -1: 1, 1: 1, 50: 50, 200: 200, 201: 200, 10000: 200}
	for in, want := range cases {
		assert.Equal(t, want, ClampLimit(in), "limit %d", in)
	}
}

func TestMirrorFailureDoesNotFailPush(t *testing.T) {
	f := newFixture(t)
	f.mirror.err = errors.New("connection refused")

	saved, err := f.svc.Push(context.Background(), access("company-a", "pos-1"), []byte(`{"a":1}`))
	require.NoError(t, err)
	f.svc.Wait()

	require.Len(t, f.mirror.uploads, 1)
	assert.Equal(t, saved.ID, f.mirror.uploads[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BackupMirrorTotal.WithLabelValues("failure")))
}

func TestPushWithoutMirror(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db, 0, nil, nil)

	_, err := svc.Push(context.Background(), access("company-a", "pos-1"), []byte(`{}`))
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, DefaultRetention, svc.retention)
}
