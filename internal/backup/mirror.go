package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"
)

const mirrorTimeout = 60 * time.Second

// Mirror copies a committed backup off-site.
type Mirror interface {
	Upload(ctx context.Context, b models.Backup) error
}

// FTPConfig holds the off-site FTP target.
type FTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Path      string
	Retention int
}

// FTPMirror uploads backups to an FTP server, one file per backup, and keeps
// the newest Retention files per company there.
type FTPMirror struct {
	cfg  FTPConfig
	dial func(ctx context.Context, addr string) (ftpConn, error)
}

// ftpConn is the subset of *ftp.ServerConn the mirror uses.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	NameList(path string) ([]string, error)
	Delete(path string) error
	Quit() error
}

// NewFTPMirror creates an FTPMirror.
func NewFTPMirror(cfg FTPConfig) *FTPMirror {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Retention < 1 {
		cfg.Retention = DefaultRetention
	}
	return &FTPMirror{cfg: cfg, dial: dialFTP}
}

func dialFTP(ctx context.Context, addr string) (ftpConn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// FileName is the remote name of a backup; names sort by creation time within a company.
func FileName(b models.Backup) string {
	return fmt.Sprintf("%s_%s_%s.json", b.CompanyID, b.CreatedAt.UTC().Format("20060102T150405.000000Z"), b.ID)
}

// Upload stores b and prunes older files of the same company.
func (m *FTPMirror) Upload(ctx context.Context, b models.Backup) error {
	conn, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	name := FileName(b)
	if err := conn.Stor(name, bytes.NewReader(b.BackupJSON)); err != nil {
		return fmt.Errorf("FTP upload failed: %w", err)
	}
	logger.L().Info("Backup: Mirror: uploaded", zap.String("file", name), zap.String("host", m.cfg.Host))

	m.prune(conn, b.CompanyID)
	return nil
}

// Ping checks connectivity and that the target directory is usable.
func (m *FTPMirror) Ping(ctx context.Context) error {
	conn, err := m.connect(ctx)
	if err != nil {
		return err
	}
	return conn.Quit()
}

func (m *FTPMirror) connect(ctx context.Context) (ftpConn, error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("FTP connection failed: %w", err)
	}
	if err := conn.Login(m.cfg.Username, m.cfg.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("FTP login failed: %w", err)
	}

	dir := path.Clean("/" + m.cfg.Path)
	if dir != "/" {
		if err := conn.ChangeDir(dir); err != nil {
			conn.MakeDir(dir)
			if err := conn.ChangeDir(dir); err != nil {
				conn.Quit()
				return nil, fmt.Errorf("FTP directory change failed: %w", err)
			}
		}
	}
	return conn, nil
}

// prune deletes the company's files beyond the retention count. Failures are
// logged; the upload already succeeded.
func (m *FTPMirror) prune(conn ftpConn, companyID string) {
	names, err := conn.NameList("")
	if err != nil {
		logger.L().Warn("Backup: Mirror: list failed", zap.Error(err))
		return
	}

	var mine []string
	for _, n := range names {
		n = path.Base(n)
		if strings.HasPrefix(n, companyID+"_") && strings.HasSuffix(n, ".json") {
			mine = append(mine, n)
		}
	}
	if len(mine) <= m.cfg.Retention {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(mine)))
	for _, n := range mine[m.cfg.Retention:] {
		if err := conn.Delete(n); err != nil {
			logger.L().Warn("Backup: Mirror: delete failed", zap.String("file", n), zap.Error(err))
			continue
		}
		logger.L().Info("Backup: Mirror: deleted old backup", zap.String("file", n))
	}
}
