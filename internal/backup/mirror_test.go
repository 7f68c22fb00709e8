package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/fullpos/license-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFTP struct {
	dirs     map[string]bool
	cwd      string
	files    map[string][]byte
	loginErr error
	quits    int
}

func newFakeFTP() *fakeFTP {
	return &fakeFTP{dirs: map[string]bool{"/": true}, cwd: "/", files: map[string][]byte{}}
}

func (f *fakeFTP) Login(user, password string) error { return f.loginErr }

func (f *fakeFTP) ChangeDir(p string) error {
	if !f.dirs[p] {
		return errors.New("550 no such directory")
	}
	f.cwd = p
	return nil
}

func (f *fakeFTP) MakeDir(p string) error {
	f.dirs[p] = true
	return nil
}

func (f *fakeFTP) Stor(p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[f.cwd+"/"+p] = data
	return nil
}

func (f *fakeFTP) NameList(string) ([]string, error) {
	var names []string
	for full := range f.files {
		if strings.HasPrefix(full, f.cwd+"/") {
			names = append(names, strings.TrimPrefix(full, f.cwd+"/"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeFTP) Delete(p string) error {
	delete(f.files, f.cwd+"/"+p)
	return nil
}

func (f *fakeFTP) Quit() error {
	f.quits++
	return nil
}

func newTestMirror(conn *fakeFTP, retention int) (*FTPMirror, *string) {
	m := NewFTPMirror(FTPConfig{Host: "backup.example.com", Username: "u", Password: "p", Path: "fullpos", Retention: retention})
	var dialed string
	m.dial = func(_ context.Context, addr string) (ftpConn, error) {
		dialed = addr
		return conn, nil
	}
	return m, &dialed
}

func backupAt(company string, i int) models.Backup {
	return models.Backup{
		ID:         fmt.Sprintf("b%02d", i),
		CompanyID:  company,
		DeviceID:   "pos-1",
		BackupJSON: []byte(fmt.Sprintf(`{"seq":%d}`, i)),
		CreatedAt:  t0.Add(time.Duration(i) * time.Minute),
	}
}

func TestFTPMirrorUploadCreatesDirectory(t *testing.T) {
	conn := newFakeFTP()
	m, dialed := newTestMirror(conn, 3)

	b := backupAt("company-a", 1)
	require.NoError(t, m.Upload(context.Background(), b))

	assert.Equal(t, "backup.example.com:21", *dialed)
	assert.True(t, conn.dirs["/fullpos"])
	assert.Equal(t, `{"seq":1}`, string(conn.files["/fullpos/"+FileName(b)]))
	assert.Equal(t, 1, conn.quits)
}

func TestFTPMirrorPrunesPerCompany(t *testing.T) {
	conn := newFakeFTP()
	m, _ := newTestMirror(conn, 3)
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, backupAt("company-b", 0)))
	for i := 1; i <= 5; i++ {
		require.NoError(t, m.Upload(ctx, backupAt("company-a", i)))
	}

	names, err := conn.NameList("")
	require.NoError(t, err)
	var kept []string
	for _, n := range names {
		if strings.HasPrefix(n, "company-a_") {
			kept = append(kept, n)
		}
	}
	assert.Equal(t, []string{
		FileName(backupAt("company-a", 3)),
		FileName(backupAt("company-a", 4)),
		FileName(backupAt("company-a", 5)),
	}, kept)
	assert.Contains(t, names, FileName(backupAt("company-b", 0)))
}

func TestFTPMirrorLoginFailure(t *testing.T) {
	conn := newFakeFTP()
	conn.loginErr = errors.New("530 login incorrect")
	m, _ := newTestMirror(conn, 3)

	err := m.Upload(context.Background(), backupAt("company-a", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FTP login failed")
	assert.Empty(t, conn.files)
	assert.Equal(t, 1, conn.quits)
}

func TestFTPMirrorPing(t *testing.T) {
	conn := newFakeFTP()
	m, _ := newTestMirror(conn, 3)
	require.NoError(t, m.Ping(context.Background()))

	m.dial = func(context.Context, string) (ftpConn, error) { return nil, errors.New("dial tcp: refused") }
	err := m.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FTP connection failed")
}

func TestFileNameSortsByCreation(t *testing.T) {
	a := FileName(backupAt("c", 1))
	b := FileName(backupAt("c", 2))
	assert.Less(t, a, b)
	assert.True(t, strings.HasPrefix(a, "c_20250301T120100.000000Z_"))
}
