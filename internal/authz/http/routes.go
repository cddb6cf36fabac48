package authzhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

const defaultVoteLimit = 600

// MountRoutes registers the API endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limit := h.voteLimit
	if limit <= 0 {
		limit = defaultVoteLimit
	}
	limiter := httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	if h.voter != nil {
		r.With(limiter).Post("/authz/vote", h.handleVote)
	}
	if h.memberships != nil {
		r.Route("/projects/{projectID}/members", func(pr chi.Router) {
			pr.Get("/", h.handleProjectMembers)
			pr.Get("/{userID}", h.handleMember)
			pr.Group(func(wr chi.Router) {
				if h.guard != nil && h.manageCap != "" {
					wr.Use(h.guard.RequireProjectCapability(h.manageCap, "projectID"))
				}
				wr.Put("/{userID}", h.handleAssign)
				wr.Delete("/{userID}", h.handleRevoke)
			})
		})
		r.Get("/users/{userID}/memberships", h.handleUserMemberships)
	}
	if h.catalog != nil {
		r.Get("/capabilities", h.handleCapabilities)
	}
	r.Group(func(ar chi.Router) {
		if h.guard != nil && h.adminCap != "" {
			ar.Use(h.guard.RequireCapability(h.adminCap))
		}
		if h.sync != nil {
			ar.Post("/capabilities/sync", h.handleSync)
		}
		if h.timeline != nil {
			ar.Get("/audit/timeline", h.handleTimeline)
		}
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		if id := strings.TrimSpace(p.ID); id != "" {
			return "user:" + id, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
