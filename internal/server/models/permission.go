package models

import "time"

// Permission grants Level on FileID to UserID. At most one row exists per
// (FileID, UserID); exactly one owner row exists per file.
type Permission struct {
	ID        string
	FileID    string
	UserID    string
	Level     AccessLevel
	GrantedBy string
	CreatedAt time.Time
}
