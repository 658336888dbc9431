// Package models defines server-side data models persisted in the metadata
// store: file records, permission grants and access-log entries.
package models
