package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
)

// ExportContentType is the media type of Export's output.
const ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Service serves the counts dashboard and its spreadsheet export.
type Service interface {
	Summary(ctx context.Context, actor authz.Actor) (*Summary, error)
	Export(ctx context.Context, actor authz.Actor) ([]byte, error)
}

type service struct {
	repo  Repository
	authz authz.Authorizer
	now   func() time.Time
}

// NewService builds the reports service. now may be nil.
func NewService(repo Repository, authorizer authz.Authorizer, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, authz: authorizer, now: now}, nil
}

var reportTarget = authz.Target{Kind: authz.TargetReport}

func (s *service) Summary(ctx context.Context, actor authz.Actor) (*Summary, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewReports, reportTarget); err != nil {
		return nil, err
	}
	return s.summary(ctx)
}

func (s *service) summary(ctx context.Context) (*Summary, error) {
	identities, err := s.repo.IdentityCounts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count identities")
	}
	groups, err := s.repo.ProfileGroups(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count profiles")
	}
	placeholders, err := s.repo.PlaceholderProfiles(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count placeholder profiles")
	}
	doors, err := s.repo.DoorCounts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count doors")
	}
	locks, err := s.repo.LockCounts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count locks")
	}

	profiles := ProfileCounts{Unprovisioned: placeholders, ByRole: make(map[enums.Role]int64, len(enums.Roles()))}
	for _, role := range enums.Roles() {
		profiles.ByRole[role] = 0
	}
	for _, g := range groups {
		profiles.Total += g.Total
		profiles.ByRole[g.Role] += g.Total
		if g.IsActive {
			profiles.Active += g.Total
		} else {
			profiles.Inactive += g.Total
		}
	}

	return &Summary{
		Identities:  identities,
		Profiles:    profiles,
		Doors:       doors,
		Locks:       locks,
		GeneratedAt: s.now(),
	}, nil
}

// Export renders the summary, the doors and the locks as an xlsx workbook.
func (s *service) Export(ctx context.Context, actor authz.Actor) ([]byte, error) {
	if err := s.authz.Authorize(ctx, actor, authz.ActionViewReports, reportTarget); err != nil {
		return nil, err
	}
	summary, err := s.summary(ctx)
	if err != nil {
		return nil, err
	}
	doors, err := s.repo.DoorLines(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list doors")
	}
	locks, err := s.repo.LockLines(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locks")
	}
	out, err := buildWorkbook(summary, doors, locks)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build workbook")
	}
	return out, nil
}
