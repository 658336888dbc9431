package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/dmitrijs2005/lmsstorage/internal/dbx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/blobstore"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/accesslogs"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/files"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/permissions"
	"github.com/google/uuid"
)

type permKey struct{ file, user string }

// memDB is a tiny in-memory stand-in for the metadata store shared by the
// fake repositories.
type memDB struct {
	mu    sync.Mutex
	files map[string]*models.File
	perms map[permKey]*models.Permission
	logs  []*models.AccessLogEntry
	clock time.Time

	failCreateFile  error
	failCreateOwner error
	failDeleteAll   error
	failGetLevel    error
	failInsertLog   error

	listOffsets  []int
	beforeUpsert func(m *memDB)
}

func newMemDB() *memDB {
	return &memDB{
		files: make(map[string]*models.File),
		perms: make(map[permKey]*models.Permission),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memDB) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memDB) permsFor(fileID string) []*models.Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Permission
	for k, p := range m.perms {
		if k.file == fileID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memDB) actions() []models.AccessAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AccessAction, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Action)
	}
	return out
}

type fakeFiles struct {
	files.Repository
	m *memDB
}

func (r *fakeFiles) Create(ctx context.Context, f *models.File) (*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failCreateFile != nil {
		return nil, r.m.failCreateFile
	}
	for _, existing := range r.m.files {
		if existing.StoragePath == f.StoragePath {
			return nil, common.ErrConflict
		}
	}
	f.ID = uuid.NewString()
	f.CreatedAt = r.m.tick()
	f.UpdatedAt = f.CreatedAt
	cp := *f
	r.m.files[f.ID] = &cp
	return f, nil
}

func (r *fakeFiles) GetByID(ctx context.Context, id string) (*models.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.files[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFiles) Delete(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.files[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.m.files, id)
	return nil
}

func (r *fakeFiles) visible(userID string) []*models.FileSummary {
	var out []*models.FileSummary
	for k, p := range r.m.perms {
		if k.user != userID {
			continue
		}
		f, ok := r.m.files[k.file]
		if !ok {
			continue
		}
		out = append(out, &models.FileSummary{
			ID: f.ID, Filename: f.Filename, Size: f.Size, ContentType: f.ContentType,
			Bucket: f.Bucket, CreatedAt: f.CreatedAt, AccessLevel: p.Level,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *fakeFiles) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.FileSummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.listOffsets = append(r.m.listOffsets, offset)
	if offset < 0 {
		return nil, fmt.Errorf("OFFSET must not be negative")
	}
	all := r.visible(userID)
	if offset >= len(all) {
		return []*models.FileSummary{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *fakeFiles) CountForUser(ctx context.Context, userID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return int64(len(r.visible(userID))), nil
}

type fakePerms struct {
	permissions.Repository
	m *memDB
}

func (r *fakePerms) GetLevel(ctx context.Context, fileID, userID string) (models.AccessLevel, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failGetLevel != nil {
		return models.AccessNone, r.m.failGetLevel
	}
	if p, ok := r.m.perms[permKey{fileID, userID}]; ok {
		return p.Level, nil
	}
	return models.AccessNone, nil
}

func (r *fakePerms) CreateOwner(ctx context.Context, fileID, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failCreateOwner != nil {
		return r.m.failCreateOwner
	}
	for k, p := range r.m.perms {
		if k.file == fileID && p.Level == models.AccessOwner {
			return common.ErrConflict
		}
	}
	r.m.perms[permKey{fileID, userID}] = &models.Permission{
		ID: uuid.NewString(), FileID: fileID, UserID: userID, Level: models.AccessOwner, GrantedBy: userID, CreatedAt: r.m.clock,
	}
	return nil
}

func (r *fakePerms) Upsert(ctx context.Context, p *models.Permission) error {
	if r.m.beforeUpsert != nil {
		r.m.beforeUpsert(r.m)
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	// file_permissions.file_id references files(id)
	if _, ok := r.m.files[p.FileID]; !ok {
		return fmt.Errorf("file %s: %w", p.FileID, common.ErrNotFound)
	}
	k := permKey{p.FileID, p.UserID}
	if existing, ok := r.m.perms[k]; ok {
		if existing.Level == models.AccessOwner {
			return permissions.ErrOwnerImmutable
		}
		existing.Level = p.Level
		existing.GrantedBy = p.GrantedBy
		return nil
	}
	cp := *p
	cp.ID = uuid.NewString()
	r.m.perms[k] = &cp
	return nil
}

func (r *fakePerms) DeleteAllForFile(ctx context.Context, fileID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failDeleteAll != nil {
		return 0, r.m.failDeleteAll
	}
	var n int64
	for k := range r.m.perms {
		if k.file == fileID {
			delete(r.m.perms, k)
			n++
		}
	}
	return n, nil
}

type fakeLogs struct {
	accesslogs.Repository
	m *memDB
}

func (r *fakeLogs) Insert(ctx context.Context, e *models.AccessLogEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failInsertLog != nil {
		return r.m.failInsertLog
	}
	cp := *e
	r.m.logs = append(r.m.logs, &cp)
	return nil
}

type fakeRepoManager struct{ m *memDB }

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Files(dbx.DBTX) files.Repository             { return &fakeFiles{m: f.m} }
func (f *fakeRepoManager) Permissions(dbx.DBTX) permissions.Repository { return &fakePerms{m: f.m} }
func (f *fakeRepoManager) AccessLogs(dbx.DBTX) accesslogs.Repository   { return &fakeLogs{m: f.m} }

// fakeTransactor restores the catalog and the ledger when fn fails, which is
// what a rolled back transaction looks like to the service.
type fakeTransactor struct {
	m     *memDB
	calls int
}

func (t *fakeTransactor) WithTx(ctx context.Context, fn dbx.TxFunc) error {
	t.calls++
	if err := ctx.Err(); err != nil {
		return err
	}

	t.m.mu.Lock()
	filesSnap := make(map[string]*models.File, len(t.m.files))
	for k, v := range t.m.files {
		cp := *v
		filesSnap[k] = &cp
	}
	permsSnap := make(map[permKey]*models.Permission, len(t.m.perms))
	for k, v := range t.m.perms {
		cp := *v
		permsSnap[k] = &cp
	}
	t.m.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		t.m.mu.Lock()
		t.m.files = filesSnap
		t.m.perms = permsSnap
		t.m.mu.Unlock()
		return err
	}
	return nil
}

// scriptedBlobs wraps a MemoryStore with injectable failures.
type scriptedBlobs struct {
	*blobstore.MemoryStore

	putCalls    int
	putExists   int
	putErr      error
	removeErr   error
	removeCalls int
	signErr     error
	listErr     error
	createErr   error
	afterPut    func()
	putPaths    []string
}

func (b *scriptedBlobs) Put(ctx context.Context, bucket, path string, data []byte, ct string) error {
	b.putCalls++
	b.putPaths = append(b.putPaths, path)
	if b.putExists > 0 {
		b.putExists--
		return fmt.Errorf("%s: %w", path, blobstore.ErrBlobExists)
	}
	if b.putErr != nil {
		return b.putErr
	}
	err := b.MemoryStore.Put(ctx, bucket, path, data, ct)
	if err == nil && b.afterPut != nil {
		b.afterPut()
	}
	return err
}

func (b *scriptedBlobs) Remove(ctx context.Context, bucket, path string) error {
	b.removeCalls++
	if b.removeErr != nil {
		return b.removeErr
	}
	return b.MemoryStore.Remove(ctx, bucket, path)
}

func (b *scriptedBlobs) SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if b.signErr != nil {
		return "", b.signErr
	}
	return b.MemoryStore.SignURL(ctx, bucket, path, ttl)
}

func (b *scriptedBlobs) ListBuckets(ctx context.Context) ([]blobstore.Bucket, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.MemoryStore.ListBuckets(ctx)
}

func (b *scriptedBlobs) CreateBucket(ctx context.Context, name string, public bool) error {
	if b.createErr != nil {
		return b.createErr
	}
	return b.MemoryStore.CreateBucket(ctx, name, public)
}
