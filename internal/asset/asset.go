package asset

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a video asset. Statuses move
// monotonically along ingested → processing → converting → ready|error;
// ready and error are terminal.
type Status string

const (
	StatusIngested   Status = "ingested"
	StatusProcessing Status = "processing"
	StatusConverting Status = "converting"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// OutputFile is a single playable artifact produced by the remote
// transcoding provider.
type OutputFile struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// OutputFileList is stored as a JSONB column in Postgres.
type OutputFileList []OutputFile

func (l OutputFileList) Value() (driver.Value, error) {
	if l == nil {
		l = OutputFileList{}
	}

	return json.Marshal(l)
}

func (l *OutputFileList) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = OutputFileList{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T in to OutputFileList", src)
	}
}

// VideoAsset is the record tracking one uploaded media file through its
// processing lifecycle. The embedded technical metadata (duration and frame
// size) is nullable until extraction has completed, and JobID is only
// present once a remote transcode job has been submitted.
type VideoAsset struct {
	ID              uuid.UUID      `db:"id"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	SourceRef       string         `db:"source_ref"`
	ThumbnailRef    string         `db:"thumbnail_ref"`
	DurationSeconds *float64       `db:"duration_seconds"`
	Width           *int           `db:"width"`
	Height          *int           `db:"height"`
	Codec           *string        `db:"codec"`
	Status          Status         `db:"status"`
	JobID           *string        `db:"job_id"`
	OutputFiles     OutputFileList `db:"output_files"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (a *VideoAsset) String() string {
	return fmt.Sprintf("Asset{id=%s status=%s}", a.ID, a.Status)
}

// Clone returns a deep copy of this asset so callers can never mutate the
// record owned by a store.
func (a *VideoAsset) Clone() *VideoAsset {
	clone := *a

	if a.DurationSeconds != nil {
		v := *a.DurationSeconds
		clone.DurationSeconds = &v
	}
	if a.Width != nil {
		v := *a.Width
		clone.Width = &v
	}
	if a.Height != nil {
		v := *a.Height
		clone.Height = &v
	}
	if a.Codec != nil {
		v := *a.Codec
		clone.Codec = &v
	}
	if a.JobID != nil {
		v := *a.JobID
		clone.JobID = &v
	}
	if a.OutputFiles != nil {
		clone.OutputFiles = append(OutputFileList{}, a.OutputFiles...)
	}

	return &clone
}

// CreateParams holds the fields provided to a store when creating a new
// asset record. The stores assign the ID and timestamps; status always
// starts at StatusIngested.
type CreateParams struct {
	Title           string
	Description     string
	SourceRef       string
	ThumbnailRef    string
	DurationSeconds *float64
	Width           *int
	Height          *int
	Codec           *string
}
