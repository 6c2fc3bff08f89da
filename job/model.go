package job

import (
	"time"

	"m3u8conv/engine"
)

// Status is the lifecycle state of a conversion job
type Status string

const (
	StatusStarting   Status = "starting"
	StatusConverting Status = "converting"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsTerminal reports whether no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Source describes where a job reads its playlist from.
// TempPath is the uploaded file to remove once the job finishes, if any.
type Source struct {
	Kind     engine.SourceKind `json:"kind"`
	Locator  string            `json:"locator"`
	TempPath string            `json:"-"`
}

// Artifact describes the finished output file
type Artifact struct {
	ViewURL     string `json:"viewUrl"`
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
}

// Record is the registry's view of one job
type Record struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Source      Source     `json:"source"`
	Artifact    *Artifact  `json:"artifact,omitempty"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	OutputPath  string   `json:"-"`
	CallbackURL string   `json:"callbackUrl,omitempty"`
	PublishKeys []string `json:"publishKeys,omitempty"`
}

// clone returns a deep copy safe to hand to callers
func (r *Record) clone() Record {
	out := *r
	if r.Artifact != nil {
		a := *r.Artifact
		out.Artifact = &a
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.PublishKeys != nil {
		out.PublishKeys = append([]string(nil), r.PublishKeys...)
	}
	return out
}

// Spec holds what a submitter provides when creating a job
type Spec struct {
	Source      Source
	CallbackURL string
	PublishKeys []string
}

// Patch is a partial update applied atomically by Registry.Update.
// Nil fields are left unchanged.
type Patch struct {
	Status      *Status
	Progress    *int
	Artifact    *Artifact
	ErrorDetail *string
	OutputPath  *string
}

// StatusPtr and IntPtr help build patches
func StatusPtr(s Status) *Status { return &s }

func IntPtr(v int) *int { return &v }

func StringPtr(s string) *string { return &s }
