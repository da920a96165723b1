package domain

import "time"

// Artifact describes one persisted generated image.
type Artifact struct {
	NumericID   int       `json:"numeric_id"`
	RunID       string    `json:"run_id"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
	Prompt      string    `json:"prompt"`
	Rewritten   string    `json:"rewritten,omitempty"`
	Cost        float64   `json:"cost"`
	ImagePath   string    `json:"image_path"`
	SidecarPath string    `json:"sidecar_path"`
	ThumbPath   string    `json:"thumb_path,omitempty"`
}

// ManifestEntry mirrors Artifact as the line-delimited manifest record.
type ManifestEntry = Artifact

// ImageListing is a summary returned by GET /api/images.
type ImageListing struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedMs int64  `json:"created_ms"`
	SizeBytes int64  `json:"size_bytes"`
	SizeLabel string `json:"size_label"`
}
