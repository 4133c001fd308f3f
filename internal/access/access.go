// Package access resolves a caller's operating mode and the fixed capability
// fingerprint that mode carries. Examiner grant scope is checked per request,
// independent of the resolved mode.
package access

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// Mode is a caller's operating mode.
type Mode string

const (
	// ModeInternal is the internal/observer mode: diagnostics, replay, and
	// validation, but no external artifact generation.
	ModeInternal Mode = "internal"
	// ModeOperator can validate, draft, and generate examiner drops, but has
	// no diagnostics or replay access.
	ModeOperator Mode = "operator"
	// ModeExaminer is read/verify only. Never any write or generation
	// capability.
	ModeExaminer Mode = "examiner"
)

// GlobalDefault is the mode used when nothing else resolves.
const GlobalDefault = ModeInternal

// Capabilities is the fixed capability fingerprint of a mode. The key set is
// identical for every mode; only the booleans differ.
type Capabilities struct {
	Diagnostics     bool `json:"diagnostics"`
	Replay          bool `json:"replay"`
	Validate        bool `json:"validate"`
	DraftGeneration bool `json:"draft_generation"`
	DropGeneration  bool `json:"drop_generation"`
	Read            bool `json:"read"`
	Verify          bool `json:"verify"`
	WriteFacts      bool `json:"write_facts"`
	ManageJobs      bool `json:"manage_jobs"`
}

// gates is the full capability matrix. Fingerprints are mutually exclusive:
// no two modes share the same row.
var gates = map[Mode]Capabilities{
	ModeInternal: {
		Diagnostics: true,
		Replay:      true,
		Validate:    true,
		Read:        true,
		Verify:      true,
		WriteFacts:  true,
		ManageJobs:  true,
	},
	ModeOperator: {
		Validate:        true,
		DraftGeneration: true,
		DropGeneration:  true,
		Read:            true,
		Verify:          true,
		WriteFacts:      true,
		ManageJobs:      true,
	},
	ModeExaminer: {
		Read:   true,
		Verify: true,
	},
}

// GatesFor returns the capability map for a mode. Unknown modes get the
// examiner fingerprint: the most restrictive one.
func GatesFor(mode Mode) Capabilities {
	caps, ok := gates[mode]
	if !ok {
		return gates[ModeExaminer]
	}
	return caps
}

// roleModes maps caller roles to modes.
var roleModes = map[string]Mode{
	"admin":    ModeInternal,
	"engineer": ModeInternal,
	"analyst":  ModeOperator,
	"officer":  ModeOperator,
	"examiner": ModeExaminer,
}

// ResolutionContext carries everything mode resolution may consult.
type ResolutionContext struct {
	Override   Mode   // explicit per-request override, highest precedence
	ExaminerID string // set when the caller authenticated as an examiner
	TenantID   string
	Role       string
	EnvDefault Mode // deployment-environment default
	Now        time.Time
}

// Gate resolves modes and enforces examiner grant scope.
type Gate struct {
	store store.Store
}

func NewGate(st store.Store) *Gate {
	return &Gate{store: st}
}

// ModeFor resolves the caller's mode. Precedence: explicit override > active
// examiner grant > role-derived > environment default > global default.
func (g *Gate) ModeFor(ctx context.Context, rc ResolutionContext) (Mode, error) {
	if rc.Override != "" {
		if _, ok := gates[rc.Override]; !ok {
			return "", eris.Errorf("access: unknown mode override %q", rc.Override)
		}
		return rc.Override, nil
	}

	if rc.ExaminerID != "" {
		grant, err := g.activeGrant(ctx, rc)
		if err != nil {
			return "", err
		}
		if grant != nil {
			return ModeExaminer, nil
		}
	}

	if mode, ok := roleModes[rc.Role]; ok {
		return mode, nil
	}
	if rc.EnvDefault != "" {
		if _, ok := gates[rc.EnvDefault]; !ok {
			return "", eris.Errorf("access: unknown environment default %q", rc.EnvDefault)
		}
		return rc.EnvDefault, nil
	}
	return GlobalDefault, nil
}

// GrantRequest is one scoped examiner access check.
type GrantRequest struct {
	CaseID   string
	ReadArea string
	Download bool
}

// CheckGrant verifies the caller's active grant covers the request. Scope is
// enforced even when the resolved mode already permitted the operation.
func (g *Gate) CheckGrant(ctx context.Context, rc ResolutionContext, req GrantRequest) error {
	grant, err := g.activeGrant(ctx, rc)
	if err != nil {
		return err
	}
	if grant == nil {
		return eris.Errorf("access: no active grant for examiner %s", rc.ExaminerID)
	}
	if req.CaseID != "" && !grant.CoversCase(req.CaseID) {
		return eris.Errorf("access: grant %s does not cover case %s", grant.ID, req.CaseID)
	}
	if req.ReadArea != "" && !grant.CoversArea(req.ReadArea) {
		return eris.Errorf("access: grant %s does not cover read area %s", grant.ID, req.ReadArea)
	}
	if req.Download && !grant.AllowDownload {
		return eris.Errorf("access: grant %s does not allow downloads", grant.ID)
	}
	return nil
}

func (g *Gate) activeGrant(ctx context.Context, rc ResolutionContext) (*model.ExaminerGrant, error) {
	now := rc.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	grant, err := g.store.ActiveGrant(ctx, rc.TenantID, rc.ExaminerID, now)
	if err != nil {
		return nil, eris.Wrapf(err, "access: look up grant for examiner %s", rc.ExaminerID)
	}
	return grant, nil
}
