package authzhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/audit"
	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/capability"
	"github.com/odyssey-erp/odyssey-authz/internal/membership"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
)

// VoteService decides capability requirements.
type VoteService interface {
	Vote(ctx context.Context, p authz.Principal, req authz.ProjectCapabilityRequirement) (authz.Decision, error)
}

// MembershipService administers project memberships.
type MembershipService interface {
	Assign(ctx context.Context, projectID, userID, roleName string, perms membership.Permissions, createdBy *string) (membership.Membership, error)
	Revoke(ctx context.Context, projectID, userID string) error
	Find(ctx context.Context, projectID, userID string) (*membership.Membership, error)
	ForProject(ctx context.Context, projectID string) ([]membership.Membership, error)
	ForUser(ctx context.Context, userID string) ([]membership.Membership, error)
}

// Catalog lists declared capabilities.
type Catalog interface {
	All() []capability.Descriptor
}

// Synchronizer seeds default grants.
type Synchronizer interface {
	Synchronize(ctx context.Context) (capability.SyncReport, error)
}

// TimelineService reads the audit trail.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Config collects handler dependencies. Catalog, Sync and Timeline are optional.
type Config struct {
	Logger      *slog.Logger
	Voter       VoteService
	Memberships MembershipService
	Catalog     Catalog
	Sync        Synchronizer
	Timeline    TimelineService
	VoteLimit   int
	// Guard, when set, protects membership writes with ManageCapability in
	// the target project, and grant sync and the audit timeline with the
	// global AdminCapability.
	Guard            *authz.Middleware
	ManageCapability string
	AdminCapability  string
}

// Handler serves the decision and membership administration API.
type Handler struct {
	logger      *slog.Logger
	voter       VoteService
	memberships MembershipService
	catalog     Catalog
	sync        Synchronizer
	timeline    TimelineService
	voteLimit   int
	guard       *authz.Middleware
	manageCap   string
	adminCap    string
}

// NewHandler builds a Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		voter:       cfg.Voter,
		memberships: cfg.Memberships,
		catalog:     cfg.Catalog,
		sync:        cfg.Sync,
		timeline:    cfg.Timeline,
		voteLimit:   cfg.VoteLimit,
		guard:       cfg.Guard,
		manageCap:   cfg.ManageCapability,
		adminCap:    cfg.AdminCapability,
	}
}

type voteRequest struct {
	UserID     string   `json:"user_id"`
	Roles      []string `json:"roles"`
	Capability string   `json:"capability"`
	ProjectID  string   `json:"project_id"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	decision, err := h.voter.Vote(r.Context(),
		authz.Principal{ID: req.UserID, Roles: req.Roles},
		authz.ProjectCapabilityRequirement{Capability: req.Capability, ProjectID: req.ProjectID},
	)
	if err != nil {
		h.logger.Error("vote", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

type assignRequest struct {
	RoleName    string                 `json:"role_name"`
	Permissions membership.Permissions `json:"permissions"`
	CreatedBy   *string                `json:"created_by"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	m, err := h.memberships.Assign(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"), req.RoleName, req.Permissions, req.CreatedBy)
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("assign membership", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := h.memberships.Revoke(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID")); err != nil {
		h.logger.Error("revoke membership", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.memberships.Find(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("find membership", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if m == nil {
		httpx.RespondError(w, fmt.Errorf("membership: %w", httpx.ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleProjectMembers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.memberships.ForProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.logger.Error("list project members", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"memberships": rows})
}

func (h *Handler) handleUserMemberships(w http.ResponseWriter, r *http.Request) {
	rows, err := h.memberships.ForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("list user memberships", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"memberships": rows})
}

type descriptorView struct {
	Key          string         `json:"key"`
	Module       string         `json:"module"`
	Label        string         `json:"label"`
	DefaultRoles []string       `json:"default_roles"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.All()
	out := make([]descriptorView, 0, len(all))
	for _, d := range all {
		out = append(out, descriptorView(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": out})
}

type syncResponse struct {
	RunID      string             `json:"run_id"`
	Skipped    bool               `json:"skipped"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Created    []capability.Grant `json:"created"`
	Audited    int                `json:"audited"`
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.Synchronize(r.Context())
	if err != nil {
		h.logger.Error("capability sync", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	created := report.Created
	if created == nil {
		created = []capability.Grant{}
	}
	httpx.JSON(w, http.StatusOK, syncResponse{
		RunID:      report.RunID,
		Skipped:    report.Skipped,
		SkipReason: report.SkipReason,
		Created:    created,
		Audited:    report.Audited,
	})
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		Page:     atoi(q.Get("page")),
		PageSize: atoi(q.Get("page_size")),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
	}
	result, err := h.timeline.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func atoi(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}
