package syncengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/fullpos/license-server/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type dialect struct {
	text, integer, num, boolean, timestamp string
}

var dialects = map[string]dialect{
	"postgres": {text: "TEXT", integer: "BIGINT", num: "DOUBLE PRECISION", boolean: "BOOLEAN", timestamp: "TIMESTAMPTZ"},
	"sqlite":   {text: "TEXT", integer: "INTEGER", num: "REAL", boolean: "BOOLEAN", timestamp: "DATETIME"},
}

func (d dialect) typeOf(k Kind) string {
	switch k {
	case Int:
		return d.integer
	case Num:
		return d.num
	case Bool:
		return d.boolean
	default:
		return d.text
	}
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// EnsureSchema creates every registry table and adds columns declared since the
// table was created. Existing columns are never altered or dropped.
func EnsureSchema(ctx context.Context, db *gorm.DB, reg *Registry) error {
	d, ok := dialects[db.Dialector.Name()]
	if !ok {
		return fmt.Errorf("sync schema: unsupported dialect %q", db.Dialector.Name())
	}
	db = db.WithContext(ctx)

	for _, t := range reg.Tables() {
		if err := db.Exec(createTableSQL(d, t)).Error; err != nil {
			return fmt.Errorf("failed to create sync table %s: %w", t.Name, err)
		}
		index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			quote("idx_"+t.Name+"_company_updated"), quote(t.Name), quote(ColCompanyID), quote(ColUpdatedAt))
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to index sync table %s: %w", t.Name, err)
		}

		for _, c := range t.Columns {
			if db.Migrator().HasColumn(t.Name, c.Name) {
				continue
			}
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(t.Name), quote(c.Name), d.typeOf(c.Kind))
			if err := db.Exec(alter).Error; err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", t.Name, c.Name, err)
			}
			logger.L().Info("Sync: Schema: column added", zap.String("table", t.Name), zap.String("column", c.Name))
		}
	}
	return nil
}

func createTableSQL(d dialect, t *Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quote(t.Name))
	fmt.Fprintf(&b, "  %s VARCHAR(36) NOT NULL,\n", quote(ColCompanyID))
	fmt.Fprintf(&b, "  %s VARCHAR(100) NOT NULL,\n", quote(t.IDColumn))
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "  %s %s,\n", quote(c.Name), d.typeOf(c.Kind))
	}
	fmt.Fprintf(&b, "  %s %s NOT NULL DEFAULT FALSE,\n", quote(ColIsDeleted), d.boolean)
	fmt.Fprintf(&b, "  %s %s NOT NULL DEFAULT CURRENT_TIMESTAMP,\n", quote(ColCreatedAt), d.timestamp)
	fmt.Fprintf(&b, "  %s %s,\n", quote(ColUpdatedAt), d.timestamp)
	fmt.Fprintf(&b, "  PRIMARY KEY (%s, %s)\n)", quote(ColCompanyID), quote(t.IDColumn))
	return b.String()
}
