// Package membership stores the per-project role and capability overrides of
// each user. A (project, user) pair has at most one membership.
package membership

import "time"

// Membership is one user's role within one project.
type Membership struct {
	ProjectID   string      `json:"project_id"`
	UserID      string      `json:"user_id"`
	RoleName    string      `json:"role_name"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
	CreatedBy   *string     `json:"created_by,omitempty"`
}
