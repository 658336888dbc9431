// Package services contains server-side business logic. StorageService
// composes the permission ledger, the file catalog and the blob store into the
// authorization-gated file operations.
//
// Every operation on an existing file resolves the caller's permission row
// first. A caller without a row gets common.ErrForbidden whether or not the
// file exists; common.ErrNotFound is only reported to callers that hold a row
// for a file whose catalog record, blob or bucket no longer matches.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/dmitrijs2005/lmsstorage/internal/dbx"
	"github.com/dmitrijs2005/lmsstorage/internal/filex"
	"github.com/dmitrijs2005/lmsstorage/internal/logging"
	"github.com/dmitrijs2005/lmsstorage/internal/server/blobstore"
	"github.com/dmitrijs2005/lmsstorage/internal/server/config"
	"github.com/dmitrijs2005/lmsstorage/internal/server/metrics"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lmsstorage/internal/server/reqmeta"
	"github.com/google/uuid"
)

const (
	maxPathAttempts     = 3
	compensationTimeout = 30 * time.Second

	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Options are the tunables of StorageService.
type Options struct {
	DefaultBucket     string
	MaxUploadSize     int64
	AllowedExtensions []string
	SignedURLTTL      time.Duration
}

// OptionsFromConfig extracts the service options from the server config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultBucket:     cfg.DefaultBucket,
		MaxUploadSize:     cfg.MaxUploadSize,
		AllowedExtensions: cfg.AllowedExtensions,
		SignedURLTTL:      cfg.SignedURLTTL,
	}
}

type StorageService struct {
	db          dbx.DBTX
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	blobs       blobstore.BlobStore
	opts        Options
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewStorageService wires the service. db serves single-statement reads and
// writes; tx runs the multi-row catalog and ledger changes atomically.
// metrics may be nil.
func NewStorageService(db dbx.DBTX, tx dbx.Transactor, m repomanager.RepositoryManager, blobs blobstore.BlobStore,
	opts Options, logger logging.Logger, mx *metrics.Metrics) *StorageService {
	return &StorageService{
		db:          db,
		tx:          tx,
		repomanager: m,
		blobs:       blobs,
		opts:        opts,
		logger:      logger.With("module", "storage"),
		metrics:     mx,
		now:         time.Now,
	}
}

// Upload stores data as a new file owned by userID. The blob is written
// first; the catalog row and the owner permission follow in one transaction.
// If that transaction fails the blob is removed again before returning.
func (s *StorageService) Upload(ctx context.Context, userID, bucket, filename string, data []byte) (file *models.File, err error) {
	defer s.observe("upload", time.Now(), &err)

	if userID == "" {
		return nil, fmt.Errorf("missing caller identity: %w", common.ErrForbidden)
	}
	if bucket == "" {
		bucket = s.opts.DefaultBucket
	}
	if err := ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	filename = strings.TrimSpace(filename)
	if err := ValidateUpload(filename, int64(len(data)), s.opts.MaxUploadSize, s.opts.AllowedExtensions); err != nil {
		return nil, err
	}

	contentType := ContentTypeFor(filename)
	path, err := s.putBlob(ctx, userID, bucket, filename, data, contentType)
	if err != nil {
		return nil, err
	}

	file = &models.File{
		UserID:      userID,
		Filename:    filename,
		StoragePath: path,
		Size:        int64(len(data)),
		ContentType: contentType,
		Bucket:      bucket,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Files(tx).Create(ctx, file); err != nil {
			return err
		}
		return s.repomanager.Permissions(tx).CreateOwner(ctx, file.ID, userID)
	})
	if err != nil {
		s.compensate(ctx, bucket, path)
		if errors.Is(err, common.ErrConflict) {
			return nil, fmt.Errorf("storage path %s: %w", path, common.ErrConflict)
		}
		return nil, s.metadataError(ctx, "create file record", err)
	}

	s.recordAccess(ctx, file.ID, userID, models.ActionUpload)
	s.metrics.ObserveUpload(file.Size)
	s.logger.Info(ctx, "file uploaded", "file_id", file.ID, "user_id", userID, "bucket", bucket, "size", file.Size)
	return file, nil
}

// putBlob writes data under a fresh storage path, drawing a new path when the
// store reports the previous one as taken.
func (s *StorageService) putBlob(ctx context.Context, userID, bucket, filename string, data []byte, contentType string) (string, error) {
	for attempt := 1; attempt <= maxPathAttempts; attempt++ {
		path, err := NewStoragePath(userID, filename, s.now())
		if err != nil {
			return "", fmt.Errorf("%v: %w", err, common.ErrInternal)
		}

		err = s.blobs.Put(ctx, bucket, path, data, contentType)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, blobstore.ErrBlobExists) {
			s.logger.Error(ctx, "blob write failed", "bucket", bucket, "path", path, "error", err)
			return "", fmt.Errorf("write blob: %w", common.ErrStorage)
		}
		s.logger.Warn(ctx, "storage path collision", "bucket", bucket, "path", path, "attempt", attempt)
	}
	return "", fmt.Errorf("no free storage path after %d attempts: %w", maxPathAttempts, common.ErrConflict)
}

// compensate removes the blob of an upload whose metadata could not be
// written. It runs even when ctx is already cancelled.
func (s *StorageService) compensate(ctx context.Context, bucket, path string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := s.blobs.Remove(cctx, bucket, path)
	s.metrics.ObserveCompensation(err)
	if err != nil {
		s.logger.Error(ctx, "orphan blob left by failed upload", "bucket", bucket, "path", path, "error", err)
		return
	}
	s.logger.Warn(ctx, "removed blob of failed upload", "bucket", bucket, "path", path)
}

// UploadFromPath reads a local file and uploads it. An empty filename means
// the base name of localPath.
func (s *StorageService) UploadFromPath(ctx context.Context, userID, bucket, localPath, filename string) (*models.File, error) {
	if filename == "" {
		filename = filepath.Base(localPath)
	}
	if err := ValidateUpload(filename, 0, s.opts.MaxUploadSize, s.opts.AllowedExtensions); err != nil {
		return nil, err
	}

	data, err := filex.ReadLocal(localPath, s.opts.MaxUploadSize)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrInvalidArgument)
	}
	return s.Upload(ctx, userID, bucket, filename, data)
}

// Fetch returns a signed reference to the blob of fileID. Any access level is
// sufficient. An empty bucket means the bucket recorded for the file.
func (s *StorageService) Fetch(ctx context.Context, userID, fileID, bucket string) (ref *models.SignedReference, err error) {
	defer s.observe("fetch", time.Now(), &err)

	id, _, err := s.authorize(ctx, userID, fileID, models.AccessRead, models.AccessWrite, models.AccessOwner)
	if err != nil {
		return nil, err
	}
	file, err := s.loadFile(ctx, id, bucket)
	if err != nil {
		return nil, err
	}

	ttl := s.opts.SignedURLTTL
	expiresAt := s.now().Add(ttl).UTC()
	url, err := s.blobs.SignURL(ctx, file.Bucket, file.StoragePath, ttl)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn(ctx, "blob missing at signing time", "file_id", id, "bucket", file.Bucket, "path", file.StoragePath)
			return nil, fmt.Errorf("file %s: %w", id, common.ErrNotFound)
		}
		s.logger.Error(ctx, "signing failed", "file_id", id, "error", err)
		return nil, fmt.Errorf("sign url: %w", common.ErrStorage)
	}

	s.recordAccess(ctx, id, userID, models.ActionDownload)
	return &models.SignedReference{URL: url, ExpiresAt: expiresAt}, nil
}

// Delete removes fileID. Only the owner may delete. The blob goes first; if
// that fails nothing else is touched. Permissions and the catalog row are then
// removed in one transaction.
func (s *StorageService) Delete(ctx context.Context, userID, fileID, bucket string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	id, _, err := s.authorize(ctx, userID, fileID, models.AccessOwner)
	if err != nil {
		return err
	}
	file, err := s.loadFile(ctx, id, bucket)
	if err != nil {
		return err
	}

	if err := s.blobs.Remove(ctx, file.Bucket, file.StoragePath); err != nil {
		s.logger.Error(ctx, "blob removal failed", "file_id", id, "bucket", file.Bucket, "path", file.StoragePath, "error", err)
		return fmt.Errorf("remove blob: %w", common.ErrStorage)
	}

	var revoked int64
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if revoked, err = s.repomanager.Permissions(tx).DeleteAllForFile(ctx, id); err != nil {
			return err
		}
		return s.repomanager.Files(tx).Delete(ctx, id)
	})
	if err != nil {
		s.logger.Error(ctx, "blob removed but metadata remains", "file_id", id, "error", err)
		return s.metadataError(ctx, "delete file record", err)
	}

	s.recordAccess(ctx, id, userID, models.ActionDelete)
	s.logger.Info(ctx, "file deleted", "file_id", id, "user_id", userID, "revoked", revoked)
	return nil
}

// GrantAccess gives targetUserID level on fileID. Only the owner may grant,
// and only read or write can be granted. An existing grant for the target is
// replaced.
func (s *StorageService) GrantAccess(ctx context.Context, actingUserID, fileID, targetUserID string, level models.AccessLevel) (err error) {
	defer s.observe("grant", time.Now(), &err)

	if !level.Grantable() {
		return fmt.Errorf("access level %q cannot be granted: %w", level, common.ErrInvalidArgument)
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return fmt.Errorf("missing target user: %w", common.ErrInvalidArgument)
	}
	if targetUserID == actingUserID {
		return fmt.Errorf("cannot change own access: %w", common.ErrInvalidArgument)
	}

	id, _, err := s.authorize(ctx, actingUserID, fileID, models.AccessOwner)
	if err != nil {
		return err
	}
	if _, err := s.loadFile(ctx, id, ""); err != nil {
		return err
	}

	err = s.repomanager.Permissions(s.db).Upsert(ctx, &models.Permission{
		FileID:    id,
		UserID:    targetUserID,
		Level:     level,
		GrantedBy: actingUserID,
	})
	if err != nil {
		if errors.Is(err, permissions.ErrOwnerImmutable) {
			return err
		}
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Info(ctx, "file deleted while granting", "file_id", id)
		}
		return s.metadataError(ctx, "upsert permission", err)
	}

	s.recordAccess(ctx, id, actingUserID, models.ActionShare)
	s.logger.Info(ctx, "access granted", "file_id", id, "granted_by", actingUserID, "user_id", targetUserID, "level", level)
	return nil
}

// CheckAccess returns the caller's level on fileID, or models.AccessNone.
func (s *StorageService) CheckAccess(ctx context.Context, userID, fileID string) (models.AccessLevel, error) {
	id, err := uuid.Parse(fileID)
	if userID == "" || err != nil {
		return models.AccessNone, nil
	}
	level, err := s.repomanager.Permissions(s.db).GetLevel(ctx, id.String(), userID)
	if err != nil {
		return models.AccessNone, s.metadataError(ctx, "get permission", err)
	}
	return level, nil
}

// GetFileInfo returns the catalog record of fileID with the caller's level.
func (s *StorageService) GetFileInfo(ctx context.Context, userID, fileID string) (info *models.FileInfo, err error) {
	defer s.observe("info", time.Now(), &err)

	id, level, err := s.authorize(ctx, userID, fileID, models.AccessRead, models.AccessWrite, models.AccessOwner)
	if err != nil {
		return nil, err
	}
	file, err := s.loadFile(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return &models.FileInfo{File: file, AccessLevel: level}, nil
}

// ListAccessibleFiles returns one page of the files userID holds any
// permission on, newest first. page starts at 1; out-of-range paging values
// fall back to the defaults or are clamped to MaxPerPage. A page past the
// last one is returned empty.
func (s *StorageService) ListAccessibleFiles(ctx context.Context, userID string, page, perPage int) (list *models.FileList, err error) {
	defer s.observe("list", time.Now(), &err)

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if maxPage := math.MaxInt / perPage; page > maxPage {
		page = maxPage
	}

	list = &models.FileList{Files: []*models.FileSummary{}, Page: page, PerPage: perPage}
	if userID == "" {
		return list, nil
	}

	repo := s.repomanager.Files(s.db)
	total, err := repo.CountForUser(ctx, userID)
	if err != nil {
		return nil, s.metadataError(ctx, "count files", err)
	}
	list.TotalCount = total
	list.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	if page > list.TotalPages {
		return list, nil
	}

	files, err := repo.ListForUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, s.metadataError(ctx, "list files", err)
	}
	if files != nil {
		list.Files = files
	}
	return list, nil
}

// CreateBucket creates name unless it already exists.
func (s *StorageService) CreateBucket(ctx context.Context, name string, public bool) (err error) {
	defer s.observe("create_bucket", time.Now(), &err)

	if err := ValidateBucketName(name); err != nil {
		return err
	}

	buckets, err := s.blobs.ListBuckets(ctx)
	if err != nil {
		s.logger.Error(ctx, "list buckets failed", "error", err)
		return fmt.Errorf("list buckets: %w", common.ErrStorage)
	}
	for _, b := range buckets {
		if b.Name == name {
			s.logger.Debug(ctx, "bucket already exists", "bucket", name)
			return nil
		}
	}

	if err := s.blobs.CreateBucket(ctx, name, public); err != nil {
		s.logger.Error(ctx, "create bucket failed", "bucket", name, "error", err)
		return fmt.Errorf("create bucket: %w", common.ErrStorage)
	}
	s.logger.Info(ctx, "bucket created", "bucket", name, "public", public)
	return nil
}

func (s *StorageService) ListBuckets(ctx context.Context) ([]blobstore.Bucket, error) {
	buckets, err := s.blobs.ListBuckets(ctx)
	if err != nil {
		s.logger.Error(ctx, "list buckets failed", "error", err)
		return nil, fmt.Errorf("list buckets: %w", common.ErrStorage)
	}
	return buckets, nil
}

// authorize parses fileID and requires the caller's level to be one of
// accepted. Malformed ids are treated like files the caller cannot see.
func (s *StorageService) authorize(ctx context.Context, userID, fileID string, accepted ...models.AccessLevel) (string, models.AccessLevel, error) {
	if userID == "" {
		return "", models.AccessNone, fmt.Errorf("missing caller identity: %w", common.ErrForbidden)
	}
	parsed, err := uuid.Parse(fileID)
	if err != nil {
		return "", models.AccessNone, common.ErrForbidden
	}
	id := parsed.String()

	level, err := s.repomanager.Permissions(s.db).GetLevel(ctx, id, userID)
	if err != nil {
		return "", models.AccessNone, s.metadataError(ctx, "get permission", err)
	}
	if !level.In(accepted...) {
		s.logger.Debug(ctx, "access denied", "file_id", id, "user_id", userID, "level", level)
		return "", level, common.ErrForbidden
	}
	return id, level, nil
}

// loadFile fetches the catalog row of a file the caller holds a permission
// on. A missing row here means the ledger and the catalog disagree. A
// non-empty bucket must match the recorded one.
func (s *StorageService) loadFile(ctx context.Context, id, bucket string) (*models.File, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.metrics.ObserveIntegrityWarning()
			s.logger.Warn(ctx, "permission row references missing file", "file_id", id)
			return nil, fmt.Errorf("file %s: %w", id, common.ErrNotFound)
		}
		return nil, s.metadataError(ctx, "get file", err)
	}
	if bucket != "" && bucket != file.Bucket {
		return nil, fmt.Errorf("file %s in bucket %s: %w", id, bucket, common.ErrNotFound)
	}
	return file, nil
}

// metadataError keeps taxonomy errors from the repositories and turns
// everything else into common.ErrInternal.
func (s *StorageService) metadataError(ctx context.Context, op string, err error) error {
	for _, kind := range []error{common.ErrNotFound, common.ErrConflict, common.ErrInvalidArgument, common.ErrInternal} {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	s.logger.Error(ctx, "metadata store failure", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, common.ErrInternal)
}

// recordAccess appends to the access log. Failures are logged and counted but
// never fail the operation.
func (s *StorageService) recordAccess(ctx context.Context, fileID, userID string, action models.AccessAction) {
	info := reqmeta.ClientInfoFrom(ctx)
	err := s.repomanager.AccessLogs(s.db).Insert(ctx, &models.AccessLogEntry{
		FileID:    fileID,
		UserID:    userID,
		Action:    action,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
	})
	if err != nil {
		s.metrics.ObserveAccessLogFailure()
		s.logger.Warn(ctx, "access log write failed", "file_id", fileID, "action", action, "error", err)
	}
}

func (s *StorageService) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, start, *err)
}
