//go:build integration

package backup

import (
	"testing"

	"github.com/fullpos/license-server/internal/dbtest"
)

func TestConcurrentPushesKeepRetentionPostgres(t *testing.T) {
	f := newFixtureWithDB(t, dbtest.OpenPostgres(t))
	tn := dbtest.NewTenant(t, f.db, "FP-BACK-PG01", "pos-1", t0)
	assertRetentionUnderConcurrency(t, f, tn.Company.ID)
}
