package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/dmitrijs2005/lmsstorage/internal/server/blobstore"
	"github.com/dmitrijs2005/lmsstorage/internal/server/models"
	"github.com/gorilla/mux"
)

// multipartOverhead is the allowance for form boundaries and the text fields
// that travel alongside the file part.
const (
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

type createBucketRequest struct {
	BucketName string `json:"bucket_name"`
	Public     bool   `json:"public"`
}

type grantRequest struct {
	TargetUserID string `json:"target_user_id"`
	AccessLevel  string `json:"access_level"`
}

type downloadResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
}

type accessResponse struct {
	FileID      string  `json:"file_id"`
	AccessLevel *string `json:"access_level"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// createBucket handles POST /storage/buckets
func (s *Server) createBucket(w http.ResponseWriter, r *http.Request) {
	var req createBucketRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.storage.CreateBucket(r.Context(), req.BucketName, req.Public); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"bucket_name": req.BucketName,
		"public":      req.Public,
	})
}

// listBuckets handles GET /storage/buckets
func (s *Server) listBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.storage.ListBuckets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if buckets == nil {
		buckets = []blobstore.Bucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

// uploadFile handles POST /storage/files
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, r, formError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("file part: %w", common.ErrInvalidArgument))
		return
	}
	defer part.Close()

	// One byte past the limit is enough for the service to reject the size.
	data, err := io.ReadAll(io.LimitReader(part, s.opts.MaxUploadSize+1))
	if err != nil {
		s.writeError(w, r, formError(err))
		return
	}

	filename := strings.TrimSpace(r.FormValue("custom_filename"))
	if filename == "" {
		filename = header.Filename
	}

	file, err := s.storage.Upload(r.Context(), userIDFrom(r.Context()), r.FormValue("bucket_name"), filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

// listFiles handles GET /storage/files
func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.storage.ListAccessibleFiles(r.Context(), userIDFrom(r.Context()), page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// getFileInfo handles GET /storage/files/{id}
func (s *Server) getFileInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.storage.GetFileInfo(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// downloadFile handles GET /storage/files/{id}/download
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	ref, err := s.storage.Fetch(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], r.URL.Query().Get("bucket_name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	expiresIn := int64(math.Round(time.Until(ref.ExpiresAt).Seconds()))
	if expiresIn < 0 {
		expiresIn = 0
	}
	writeJSON(w, http.StatusOK, downloadResponse{
		DownloadURL: ref.URL,
		ExpiresAt:   ref.ExpiresAt,
		ExpiresIn:   expiresIn,
	})
}

// redirectFile handles GET /storage/files/{id}/redirect
func (s *Server) redirectFile(w http.ResponseWriter, r *http.Request) {
	ref, err := s.storage.Fetch(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], r.URL.Query().Get("bucket_name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, ref.URL, http.StatusFound)
}

// deleteFile handles DELETE /storage/files/{id}
func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	err := s.storage.Delete(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], r.URL.Query().Get("bucket_name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "file deleted"})
}

// checkAccess handles GET /storage/files/{id}/access
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	level, err := s.storage.CheckAccess(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := accessResponse{FileID: id}
	if level != models.AccessNone {
		l := level.String()
		resp.AccessLevel = &l
	}
	writeJSON(w, http.StatusOK, resp)
}

// grantAccess handles POST /storage/files/{id}/access
func (s *Server) grantAccess(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	level, err := models.ParseGrantableLevel(req.AccessLevel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.storage.GrantAccess(r.Context(), userIDFrom(r.Context()), mux.Vars(r)["id"], req.TargetUserID, level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "access granted"})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, multipartOverhead))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed request body: %w", common.ErrInvalidArgument)
	}
	return nil
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, common.ErrInvalidArgument)
	}
	return n, nil
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, common.ErrInvalidArgument)
	}
	return fmt.Errorf("malformed multipart form: %w", common.ErrInvalidArgument)
}
