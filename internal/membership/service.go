package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
)

// ErrInvalidAssignment indicates an assignment missing its project, user or role.
var ErrInvalidAssignment = fmt.Errorf("membership: invalid assignment: %w", httpx.ErrValidation)

type assignment struct {
	ProjectID string `validate:"required,max=191"`
	UserID    string `validate:"required,max=191"`
	RoleName  string `validate:"required,max=191"`
}

// Service is the administration surface over a Store.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService builds a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		validate: validator.New(),
		logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Assign creates or replaces the membership of userID in projectID. The new
// permissions replace the stored ones wholesale; nothing is merged.
func (s *Service) Assign(ctx context.Context, projectID, userID, roleName string, perms Permissions, createdBy *string) (Membership, error) {
	in := assignment{
		ProjectID: strings.TrimSpace(projectID),
		UserID:    strings.TrimSpace(userID),
		RoleName:  strings.TrimSpace(roleName),
	}
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Membership{}, fmt.Errorf("%w: %s is %s", ErrInvalidAssignment, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return Membership{}, fmt.Errorf("%w: %v", ErrInvalidAssignment, err)
	}
	m, err := s.store.Upsert(ctx, Membership{
		ProjectID:   in.ProjectID,
		UserID:      in.UserID,
		RoleName:    in.RoleName,
		Permissions: perms.Normalize(),
		CreatedAt:   s.clock(),
		CreatedBy:   createdBy,
	})
	if err != nil {
		return Membership{}, fmt.Errorf("membership: assign: %w", err)
	}
	s.logger.Info("membership assigned",
		slog.String("project_id", m.ProjectID),
		slog.String("user_id", m.UserID),
		slog.String("role", m.RoleName),
	)
	return m, nil
}

// Revoke removes the membership. Revoking an absent membership is a no-op.
func (s *Service) Revoke(ctx context.Context, projectID, userID string) error {
	if err := s.store.Delete(ctx, strings.TrimSpace(projectID), strings.TrimSpace(userID)); err != nil {
		return fmt.Errorf("membership: revoke: %w", err)
	}
	return nil
}

// Find returns the membership or nil.
func (s *Service) Find(ctx context.Context, projectID, userID string) (*Membership, error) {
	return s.store.Find(ctx, strings.TrimSpace(projectID), strings.TrimSpace(userID))
}

// ForUser lists memberships of a user, newest first.
func (s *Service) ForUser(ctx context.Context, userID string) ([]Membership, error) {
	return s.store.ForUser(ctx, strings.TrimSpace(userID))
}

// ForProject lists memberships of a project, newest first.
func (s *Service) ForProject(ctx context.Context, projectID string) ([]Membership, error) {
	return s.store.ForProject(ctx, strings.TrimSpace(projectID))
}

// UserHasRole reports whether the user's membership in the project carries roleName.
func (s *Service) UserHasRole(ctx context.Context, projectID, userID, roleName string) (bool, error) {
	return s.store.UserHasRole(ctx, strings.TrimSpace(projectID), strings.TrimSpace(userID), strings.TrimSpace(roleName))
}
