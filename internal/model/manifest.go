package model

import "time"

// ManifestArtifact binds a logical path to its content hash and metadata.
type ManifestArtifact struct {
	Path        string `json:"path"`
	SHA256      string `json:"sha256"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

// ArtifactManifest describes one examiner drop: a bundled, hash-verifiable
// set of audit artifacts. Built once per export, immutable thereafter.
type ArtifactManifest struct {
	DropVersion        int                `json:"drop_version"`
	DropID             string             `json:"drop_id"`
	GeneratedAt        time.Time          `json:"generated_at"`
	DealID             string             `json:"deal_id,omitempty"`
	BankID             string             `json:"bank_id,omitempty"`
	DecisionSnapshotID string             `json:"decision_snapshot_id,omitempty"`
	Artifacts          []ManifestArtifact `json:"artifacts"`
	DropHash           string             `json:"drop_hash"`
}
