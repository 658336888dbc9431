package models

import "time"

// File describes one stored blob. The bytes live in the blob store under
// Bucket/StoragePath; StoragePath is server-generated and never changes.
type File struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"filepath"`
	Size        int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	Bucket      string    `json:"bucket_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FileSummary is a File joined with the caller's own access level.
type FileSummary struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	Size        int64       `json:"file_size"`
	ContentType string      `json:"content_type"`
	Bucket      string      `json:"bucket_name"`
	CreatedAt   time.Time   `json:"created_at"`
	AccessLevel AccessLevel `json:"access_level"`
}

// FileList is one page of the files a user can see.
type FileList struct {
	Files      []*FileSummary `json:"files"`
	TotalCount int64          `json:"total_count"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
}

// FileInfo is a File together with the caller's access level.
type FileInfo struct {
	File        *File       `json:"file"`
	AccessLevel AccessLevel `json:"access_level"`
}

// SignedReference is a time-limited direct download handle for one blob.
type SignedReference struct {
	URL       string    `json:"download_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
