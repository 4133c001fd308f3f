package model

import "time"

// ExaminerGrant is a scoped, expiring permission record granting an examiner
// read access to specific cases and read areas. Scope is checked per request
// independently of the resolved access mode.
type ExaminerGrant struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	ExaminerID    string     `json:"examiner_id"`
	CaseIDs       []string   `json:"case_ids"`
	ReadAreas     []string   `json:"read_areas"`
	AllowDownload bool       `json:"allow_download"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Active reports whether the grant is usable at the given instant.
func (g *ExaminerGrant) Active(now time.Time) bool {
	if g.RevokedAt != nil && !g.RevokedAt.After(now) {
		return false
	}
	return now.Before(g.ExpiresAt)
}

// CoversCase reports whether the grant's case scope includes caseID.
func (g *ExaminerGrant) CoversCase(caseID string) bool {
	for _, id := range g.CaseIDs {
		if id == caseID {
			return true
		}
	}
	return false
}

// CoversArea reports whether the grant's read-area scope includes area.
func (g *ExaminerGrant) CoversArea(area string) bool {
	for _, a := range g.ReadAreas {
		if a == area {
			return true
		}
	}
	return false
}
