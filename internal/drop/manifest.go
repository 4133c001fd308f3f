// Package drop builds and verifies examiner drops: bundled, hash-verifiable
// sets of audit artifacts. The manifest binds each artifact to its sha256 and
// the whole set to an order-sensitive aggregate drop hash.
package drop

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lakeside-credit/spread-cli/internal/canonical"
	"github.com/lakeside-credit/spread-cli/internal/model"
)

// DropVersion is the manifest schema version.
const DropVersion = 2

const dropHashDelimiter = "|"

// Artifact is one file to bundle.
type Artifact struct {
	Path    string
	Content []byte
}

// BuildInfo identifies the drop being assembled.
type BuildInfo struct {
	DropID             string
	DealID             string
	BankID             string
	DecisionSnapshotID string
	GeneratedAt        time.Time
}

// BuildManifest hashes each artifact and derives the aggregate drop hash.
// Artifact order is preserved: reordering the inputs changes the drop hash.
func BuildManifest(info BuildInfo, artifacts []Artifact) (*model.ArtifactManifest, error) {
	if len(artifacts) == 0 {
		return nil, eris.New("drop: manifest requires at least one artifact")
	}
	seen := make(map[string]bool, len(artifacts))

	entries := make([]model.ManifestArtifact, len(artifacts))
	hashes := make([]string, len(artifacts))
	for i, a := range artifacts {
		if a.Path == "" {
			return nil, eris.Errorf("drop: artifact %d has no path", i)
		}
		if seen[a.Path] {
			return nil, eris.Errorf("drop: duplicate artifact path %q", a.Path)
		}
		seen[a.Path] = true

		h := canonical.HashBytes(a.Content)
		hashes[i] = h
		entries[i] = model.ManifestArtifact{
			Path:        a.Path,
			SHA256:      h,
			SizeBytes:   int64(len(a.Content)),
			ContentType: contentType(a.Path),
		}
	}

	return &model.ArtifactManifest{
		DropVersion:        DropVersion,
		DropID:             info.DropID,
		GeneratedAt:        info.GeneratedAt.UTC(),
		DealID:             info.DealID,
		BankID:             info.BankID,
		DecisionSnapshotID: info.DecisionSnapshotID,
		Artifacts:          entries,
		DropHash:           dropHash(hashes),
	}, nil
}

// dropHash hashes the ordered artifact hashes joined with a fixed delimiter.
func dropHash(hashes []string) string {
	return canonical.Hash(strings.Join(hashes, dropHashDelimiter))
}

// ChecksumsFile renders the plaintext companion file, one "<hash>  <path>"
// line per artifact in manifest order.
func ChecksumsFile(m *model.ArtifactManifest) string {
	var b strings.Builder
	for _, a := range m.Artifacts {
		fmt.Fprintf(&b, "%s  %s\n", a.SHA256, a.Path)
	}
	return b.String()
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
