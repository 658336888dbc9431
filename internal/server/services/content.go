package services

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
)

const (
	maxFilenameLen    = 255
	maxStoredNameLen  = 100
	storagePathLayout = "20060102_150405"
)

var contentTypes = map[string]string{
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".zip":  "application/zip",
}

// ContentTypeFor derives the content type from the filename extension. The
// type a client claims is never trusted.
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ValidateUpload checks the display filename, its extension against allowed
// (lowercase, dot-prefixed) and size against max.
func ValidateUpload(filename string, size, max int64, allowed []string) error {
	name := strings.TrimSpace(filename)
	if name == "" || len(name) > maxFilenameLen {
		return fmt.Errorf("filename length: %w", common.ErrInvalidArgument)
	}

	ext := strings.ToLower(filepath.Ext(name))
	ok := false
	for _, a := range allowed {
		if ext == a {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("file extension %q not allowed: %w", ext, common.ErrInvalidArgument)
	}

	if size < 0 || size > max {
		return fmt.Errorf("file size %d exceeds limit of %d bytes: %w", size, max, common.ErrInvalidArgument)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename keeps the base name and replaces anything outside a
// conservative character set, so the result is a single path segment.
func sanitizeFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	if len(base) > maxStoredNameLen {
		ext := filepath.Ext(base)
		if len(ext) >= maxStoredNameLen {
			ext = ""
		}
		base = base[:maxStoredNameLen-len(ext)] + ext
	}
	return base
}

// NewStoragePath builds {userID}/{timestamp}_{salt}_{name}. The random salt
// keeps two uploads of the same name within one second apart.
func NewStoragePath(userID, filename string, now time.Time) (string, error) {
	salt, err := common.MakeRandHexString(4)
	if err != nil {
		return "", fmt.Errorf("random salt: %w", err)
	}
	return fmt.Sprintf("%s/%s_%s_%s", userID, now.UTC().Format(storagePathLayout), salt, sanitizeFilename(filename)), nil
}

var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidateBucketName enforces S3 naming: 3 to 63 characters of lowercase
// letters, digits, dots and hyphens, starting and ending alphanumeric.
func ValidateBucketName(name string) error {
	if !bucketNameRe.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("bucket name %q: %w", name, common.ErrInvalidArgument)
	}
	return nil
}
