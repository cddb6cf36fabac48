package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/capability"
	"github.com/odyssey-erp/odyssey-authz/internal/membership"
)

// MembershipAdmin administers project memberships.
type MembershipAdmin interface {
	Assign(ctx context.Context, projectID, userID, roleName string, perms membership.Permissions, createdBy *string) (membership.Membership, error)
	Revoke(ctx context.Context, projectID, userID string) error
	ForProject(ctx context.Context, projectID string) ([]membership.Membership, error)
	ForUser(ctx context.Context, userID string) ([]membership.Membership, error)
}

// Voter decides capability requirements.
type Voter interface {
	Vote(ctx context.Context, p authz.Principal, req authz.ProjectCapabilityRequirement) (authz.Decision, error)
}

// Synchronizer seeds default grants.
type Synchronizer interface {
	Synchronize(ctx context.Context) (capability.SyncReport, error)
}

// ErrDenied is returned by Vote when access is not granted.
var ErrDenied = errors.New("authz cli: access denied")

// AdminCLI runs authorization administration commands against live services.
type AdminCLI struct {
	Memberships MembershipAdmin
	Voter       Voter
	Sync        Synchronizer
	Grants      capability.Store
	Cache       capability.Invalidator
	Stdout      io.Writer
	JSON        bool
}

func (c *AdminCLI) out() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

// AssignOptions carries the assign command arguments.
type AssignOptions struct {
	ProjectID    string
	UserID       string
	RoleName     string
	Capabilities []string
	Flags        map[string]bool
	CreatedBy    string
}

// Assign creates or replaces a membership and prints it.
func (c *AdminCLI) Assign(ctx context.Context, opts AssignOptions) error {
	if c.Memberships == nil {
		return errors.New("authz cli: memberships not configured")
	}
	perms := membership.Permissions{Capabilities: opts.Capabilities}
	if len(opts.Flags) > 0 {
		perms.Extra = make(map[string]any, len(opts.Flags))
		for k, v := range opts.Flags {
			perms.Extra[k] = v
		}
	}
	var createdBy *string
	if by := strings.TrimSpace(opts.CreatedBy); by != "" {
		createdBy = &by
	}
	m, err := c.Memberships.Assign(ctx, opts.ProjectID, opts.UserID, opts.RoleName, perms, createdBy)
	if err != nil {
		return err
	}
	return c.printMemberships([]membership.Membership{m})
}

// Revoke removes a membership.
func (c *AdminCLI) Revoke(ctx context.Context, projectID, userID string) error {
	if c.Memberships == nil {
		return errors.New("authz cli: memberships not configured")
	}
	if err := c.Memberships.Revoke(ctx, projectID, userID); err != nil {
		return err
	}
	if c.JSON {
		return c.writeJSON(map[string]string{"project_id": projectID, "user_id": userID, "status": "revoked"})
	}
	_, err := fmt.Fprintf(c.out(), "revoked %s from %s\n", userID, projectID)
	return err
}

// Members lists memberships by project, or by user when projectID is empty.
func (c *AdminCLI) Members(ctx context.Context, projectID, userID string) error {
	if c.Memberships == nil {
		return errors.New("authz cli: memberships not configured")
	}
	var (
		list []membership.Membership
		err  error
	)
	switch {
	case projectID != "":
		list, err = c.Memberships.ForProject(ctx, projectID)
	case userID != "":
		list, err = c.Memberships.ForUser(ctx, userID)
	default:
		return errors.New("authz cli: --project or --user is required")
	}
	if err != nil {
		return err
	}
	return c.printMemberships(list)
}

// Vote evaluates a requirement and prints the decision. A denied decision is
// reported as ErrDenied so callers can map it to an exit status.
func (c *AdminCLI) Vote(ctx context.Context, p authz.Principal, req authz.ProjectCapabilityRequirement) error {
	if c.Voter == nil {
		return errors.New("authz cli: voter not configured")
	}
	decision, err := c.Voter.Vote(ctx, p, req)
	if err != nil {
		return err
	}
	if c.JSON {
		if err := c.writeJSON(decision); err != nil {
			return err
		}
	} else {
		verdict := "DENIED"
		if decision.Granted {
			verdict = "GRANTED"
		}
		if _, err := fmt.Fprintf(c.out(), "%s (%s)\n", verdict, decision.Reason); err != nil {
			return err
		}
	}
	if !decision.Granted {
		return ErrDenied
	}
	return nil
}

// Grant adds a single role capability pair outside of module defaults.
func (c *AdminCLI) Grant(ctx context.Context, role, capabilityKey string) error {
	if c.Grants == nil {
		return errors.New("authz cli: grant store not configured")
	}
	created, err := capability.GrantRole(ctx, c.Grants, c.Cache, role, capabilityKey)
	if err != nil {
		return err
	}
	if c.JSON {
		return c.writeJSON(map[string]any{"role_name": role, "capability": capabilityKey, "created": created})
	}
	state := "already granted"
	if created {
		state = "granted"
	}
	_, err = fmt.Fprintf(c.out(), "%s %s to %s\n", state, capabilityKey, role)
	return err
}

// Synchronize runs the capability synchronizer once and prints the report.
func (c *AdminCLI) Synchronize(ctx context.Context) error {
	if c.Sync == nil {
		return errors.New("authz cli: synchronizer not configured")
	}
	report, err := c.Sync.Synchronize(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		return c.writeJSON(report)
	}
	w := c.out()
	if report.Skipped {
		_, err := fmt.Fprintf(w, "sync %s skipped: %s\n", report.RunID, report.SkipReason)
		return err
	}
	if _, err := fmt.Fprintf(w, "sync %s created %d grant(s), audited %d, audit failures %d\n",
		report.RunID, len(report.Created), report.Audited, report.AuditFailures); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, g := range report.Created {
		fmt.Fprintf(tw, "  %s\t%s\n", g.RoleName, g.Capability)
	}
	return tw.Flush()
}

func (c *AdminCLI) printMemberships(list []membership.Membership) error {
	if c.JSON {
		return c.writeJSON(list)
	}
	tw := tabwriter.NewWriter(c.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tUSER\tROLE\tCAPABILITIES\tCREATED")
	for _, m := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.ProjectID, m.UserID, m.RoleName,
			strings.Join(m.Permissions.Capabilities, ","),
			m.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	return tw.Flush()
}

func (c *AdminCLI) writeJSON(v any) error {
	enc := json.NewEncoder(c.out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
