package domain

import "time"

// UploadSession tracks one uploaded source file between upload and load.
// Sessions live in the in-memory store and reference the stored object.
type UploadSession struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	StorageKey string    `json:"storage_key"`
	Columns    []string  `json:"columns"`
	RowsSample []Row     `json:"rows_sample,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
