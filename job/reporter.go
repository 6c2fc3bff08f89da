package job

// Progress is what polling clients see for a job
type Progress struct {
	Progress    int    `json:"progress"`
	Status      Status `json:"status"`
	ViewURL     string `json:"viewUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Reporter is a read-only view over a Registry
type Reporter struct {
	registry Registry
}

func NewReporter(registry Registry) *Reporter {
	return &Reporter{registry: registry}
}

// Snapshot returns the current progress of a job or ErrNotFound
func (r *Reporter) Snapshot(id string) (Progress, error) {
	rec, err := r.registry.Get(id)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{Progress: rec.Progress, Status: rec.Status}
	switch rec.Status {
	case StatusCompleted:
		if rec.Artifact != nil {
			p.ViewURL = rec.Artifact.ViewURL
			p.DownloadURL = rec.Artifact.DownloadURL
			p.Filename = rec.Artifact.Filename
		}
	case StatusError:
		p.Error = rec.ErrorDetail
	}
	return p, nil
}
