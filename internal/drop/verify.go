package drop

import (
	"fmt"

	"github.com/lakeside-credit/spread-cli/internal/canonical"
	"github.com/lakeside-credit/spread-cli/internal/model"
)

// ArtifactStatus is one artifact's verification outcome.
type ArtifactStatus string

const (
	StatusVerified   ArtifactStatus = "verified"
	StatusMismatched ArtifactStatus = "mismatched"
	StatusMissing    ArtifactStatus = "missing"
)

// ArtifactResult is the per-artifact verification record.
type ArtifactResult struct {
	Path   string         `json:"path"`
	Status ArtifactStatus `json:"status"`
	Detail string         `json:"detail,omitempty"`
}

// VerificationResult reports per-artifact outcomes plus whole-set checks.
// Valid is true only when every check passes.
type VerificationResult struct {
	Valid         bool             `json:"valid"`
	DropHashMatch bool             `json:"drop_hash_match"`
	Artifacts     []ArtifactResult `json:"artifacts"`
	Problems      []string         `json:"problems,omitempty"`
}

// Verify re-derives every artifact hash from supplied content and compares
// against the manifest. Structured artifacts may be supplied as in-memory
// values in snapshots; they are re-canonicalized before hashing. The drop
// hash is recomputed independently from the manifest's per-artifact hashes.
func Verify(m *model.ArtifactManifest, contents map[string][]byte, snapshots map[string]any) VerificationResult {
	res := VerificationResult{}

	if m == nil || len(m.Artifacts) == 0 {
		res.Problems = append(res.Problems, "manifest has no artifacts")
		return res
	}

	seen := make(map[string]bool, len(m.Artifacts))
	allVerified := true
	hashes := make([]string, len(m.Artifacts))

	for i, entry := range m.Artifacts {
		hashes[i] = entry.SHA256
		if seen[entry.Path] {
			res.Problems = append(res.Problems, fmt.Sprintf("duplicate artifact path %q", entry.Path))
			allVerified = false
		}
		seen[entry.Path] = true

		got, err := suppliedHash(entry.Path, contents, snapshots)
		if err != nil {
			res.Artifacts = append(res.Artifacts, ArtifactResult{
				Path: entry.Path, Status: StatusMismatched, Detail: err.Error(),
			})
			allVerified = false
			continue
		}
		if got == "" {
			res.Artifacts = append(res.Artifacts, ArtifactResult{Path: entry.Path, Status: StatusMissing})
			allVerified = false
			continue
		}
		if got != entry.SHA256 {
			res.Artifacts = append(res.Artifacts, ArtifactResult{
				Path: entry.Path, Status: StatusMismatched,
				Detail: fmt.Sprintf("manifest %s, content %s", entry.SHA256, got),
			})
			allVerified = false
			continue
		}
		res.Artifacts = append(res.Artifacts, ArtifactResult{Path: entry.Path, Status: StatusVerified})
	}

	// Supplied content the manifest never mentions is its own inconsistency.
	for path := range contents {
		if !seen[path] {
			res.Problems = append(res.Problems, fmt.Sprintf("content supplied for unlisted path %q", path))
			allVerified = false
		}
	}
	for path := range snapshots {
		if !seen[path] {
			res.Problems = append(res.Problems, fmt.Sprintf("snapshot supplied for unlisted path %q", path))
			allVerified = false
		}
	}

	res.DropHashMatch = dropHash(hashes) == m.DropHash
	if !res.DropHashMatch {
		res.Problems = append(res.Problems, "recomputed drop hash does not match manifest")
	}

	res.Valid = allVerified && res.DropHashMatch && len(res.Problems) == 0
	return res
}

// suppliedHash returns the hash of the content supplied for path, "" when
// nothing was supplied. Raw bytes win over an in-memory snapshot.
func suppliedHash(path string, contents map[string][]byte, snapshots map[string]any) (string, error) {
	if raw, ok := contents[path]; ok {
		return canonical.HashBytes(raw), nil
	}
	if v, ok := snapshots[path]; ok {
		return canonical.HashValue(v)
	}
	return "", nil
}
