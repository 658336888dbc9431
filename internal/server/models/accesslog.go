package models

import "time"

// AccessAction names a recorded file operation.
type AccessAction string

const (
	ActionUpload   AccessAction = "upload"
	ActionDownload AccessAction = "download"
	ActionDelete   AccessAction = "delete"
	ActionShare    AccessAction = "share"
)

// AccessLogEntry is one row of the file access audit trail.
type AccessLogEntry struct {
	ID        string
	FileID    string
	UserID    string
	Action    AccessAction
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
