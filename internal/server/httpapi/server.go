// Package httpapi exposes StorageService over a JSON REST API routed by
// gorilla/mux. Every /storage route requires a bearer token whose user id
// becomes the caller identity.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/logging"
	"github.com/dmitrijs2005/lmsstorage/internal/server/blobstore"
	"github.com/dmitrijs2005/lmsstorage/internal/server/metrics"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 10 * time.Second

// Storage is the subset of services.StorageService the API calls.
type Storage interface {
	Upload(ctx context.Context, userID, bucket, filename string, data []byte) (*models.File, error)
	Fetch(ctx context.Context, userID, fileID, bucket string) (*models.SignedReference, error)
	Delete(ctx context.Context, userID, fileID, bucket string) error
	GrantAccess(ctx context.Context, actingUserID, fileID, targetUserID string, level models.AccessLevel) error
	CheckAccess(ctx context.Context, userID, fileID string) (models.AccessLevel, error)
	GetFileInfo(ctx context.Context, userID, fileID string) (*models.FileInfo, error)
	ListAccessibleFiles(ctx context.Context, userID string, page, perPage int) (*models.FileList, error)
	CreateBucket(ctx context.Context, name string, public bool) error
	ListBuckets(ctx context.Context) ([]blobstore.Bucket, error)
}

// Options configure the HTTP server.
type Options struct {
	Address        string
	SecretKey      []byte
	MaxUploadSize  int64
	MetricsPath    string
	// TrustedProxies may set X-Forwarded-For / X-Real-IP for the access log.
	TrustedProxies []netip.Prefix
}

type Server struct {
	opts    Options
	storage Storage
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewServer builds the REST server. mx may be nil, in which case no metrics
// route is mounted.
func NewServer(opts Options, storage Storage, mx *metrics.Metrics, l logging.Logger) *Server {
	return &Server{
		opts:    opts,
		storage: storage,
		metrics: mx,
		logger:  l.With("module", "http_server"),
	}
}

// Router builds the route table with its middleware chain.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.clientInfoMiddleware, s.metricsMiddleware)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if s.metrics != nil && s.opts.MetricsPath != "" {
		r.Handle(s.opts.MetricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/storage").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/buckets", s.createBucket).Methods(http.MethodPost)
	api.HandleFunc("/buckets", s.listBuckets).Methods(http.MethodGet)
	api.HandleFunc("/files", s.uploadFile).Methods(http.MethodPost)
	api.HandleFunc("/files", s.listFiles).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", s.getFileInfo).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", s.deleteFile).Methods(http.MethodDelete)
	api.HandleFunc("/files/{id}/download", s.downloadFile).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}/redirect", s.redirectFile).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}/access", s.checkAccess).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}/access", s.grantAccess).Methods(http.MethodPost)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
