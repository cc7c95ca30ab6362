package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/doors"
	"github.com/angelmondragon/smartaccess-backend/internal/identities"
	"github.com/angelmondragon/smartaccess-backend/internal/locks"
	"github.com/angelmondragon/smartaccess-backend/internal/repo"
	"github.com/angelmondragon/smartaccess-backend/internal/reports"
	"github.com/angelmondragon/smartaccess-backend/pkg/db/models"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

const pageSize = 100

type identityLookup interface {
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
}

type doorLookup interface {
	NameTaken(ctx context.Context, name string, exclude uuid.UUID) (bool, error)
}

// Params wires the seeder to the domain services. Every write goes through
// the services so provisioning and audit events behave as they do online.
type Params struct {
	Identities     identities.Service
	IdentityLookup identityLookup
	Doors          doors.Service
	DoorLookup     doorLookup
	Locks          locks.Service
	Reports        reports.Service
	Logger         *logger.Logger
}

// Seeder loads and removes fixtures.
type Seeder struct {
	identities identities.Service
	lookup     identityLookup
	doors      doors.Service
	doorNames  doorLookup
	locks      locks.Service
	reports    reports.Service
	logg       *logger.Logger
}

// Result counts what Load did.
type Result struct {
	IdentitiesCreated int
	IdentitiesSkipped int
	DoorsCreated      int
	DoorsSkipped      int
	LocksEngaged      int
}

// CleanupResult carries the counts around a cleanup.
type CleanupResult struct {
	Before            reports.Summary
	After             reports.Summary
	DoorsDeleted      int
	IdentitiesDeleted int
}

// New validates params and builds a Seeder.
func New(p Params) (*Seeder, error) {
	switch {
	case p.Identities == nil:
		return nil, fmt.Errorf("identities service required")
	case p.IdentityLookup == nil:
		return nil, fmt.Errorf("identity lookup required")
	case p.Doors == nil:
		return nil, fmt.Errorf("doors service required")
	case p.DoorLookup == nil:
		return nil, fmt.Errorf("door lookup required")
	case p.Locks == nil:
		return nil, fmt.Errorf("locks service required")
	case p.Reports == nil:
		return nil, fmt.Errorf("reports service required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Seeder{
		identities: p.Identities,
		lookup:     p.IdentityLookup,
		doors:      p.Doors,
		doorNames:  p.DoorLookup,
		locks:      p.Locks,
		reports:    p.Reports,
		logg:       logg,
	}, nil
}

// Load creates the fixtures that do not exist yet. Identities are matched by
// username and doors by name; a door that already exists keeps its lock.
func (s *Seeder) Load(ctx context.Context, f Fixtures) (Result, error) {
	var res Result
	system := authz.System()

	for _, fx := range f.Identities {
		username := strings.TrimSpace(fx.Username)
		_, err := s.lookup.FindByUsername(ctx, username)
		switch {
		case err == nil:
			res.IdentitiesSkipped++
			s.logg.Debug(s.logg.WithField(ctx, "username", username), "seed.identity.exists")
			continue
		case !repo.IsNotFound(err):
			return res, fmt.Errorf("lookup identity %s: %w", username, err)
		}

		input := identities.CreateInput{
			Username:    username,
			Email:       fx.Email,
			FirstName:   fx.FirstName,
			LastName:    fx.LastName,
			Password:    fx.Password,
			IsStaff:     fx.IsStaff,
			IsSuperuser: fx.IsSuperuser,
			Profile:     &identities.ProfileInput{Role: fx.Role, AccessCode: fx.AccessCode},
		}
		if fx.Phone != "" {
			phone := fx.Phone
			input.Profile.Phone = &phone
		}
		view, err := s.identities.Create(ctx, system, input)
		if err != nil {
			return res, fmt.Errorf("create identity %s: %w", username, err)
		}
		res.IdentitiesCreated++
		s.logg.Info(s.logg.WithIdentityID(ctx, view.ID), "seed.identity.created")
	}

	for _, fx := range f.Doors {
		name := strings.TrimSpace(fx.Name)
		taken, err := s.doorNames.NameTaken(ctx, name, uuid.Nil)
		if err != nil {
			return res, fmt.Errorf("lookup door %s: %w", name, err)
		}
		if taken {
			res.DoorsSkipped++
			s.logg.Debug(s.logg.WithField(ctx, "door", name), "seed.door.exists")
			continue
		}

		door, err := s.doors.Create(ctx, system, doors.CreateInput{
			Name:        name,
			Location:    fx.Location,
			Description: fx.Description,
			State:       fx.State,
			Active:      fx.Active,
		})
		if err != nil {
			return res, fmt.Errorf("create door %s: %w", name, err)
		}
		res.DoorsCreated++
		dctx := s.logg.WithDoorID(ctx, door.ID.String())
		s.logg.Info(dctx, "seed.door.created")

		if fx.Lock == nil {
			continue
		}
		actor, err := s.lockActor(ctx, fx.Lock.ChangedBy)
		if err != nil {
			return res, err
		}
		if fx.Lock.Engaged {
			_, err = s.locks.Engage(dctx, actor, door.ID, fx.Lock.Notes)
			res.LocksEngaged++
		} else {
			_, err = s.locks.Disengage(dctx, actor, door.ID, fx.Lock.Notes)
		}
		if err != nil {
			return res, fmt.Errorf("set lock for door %s: %w", name, err)
		}
	}
	return res, nil
}

// lockActor resolves who the initial lock change is recorded against.
func (s *Seeder) lockActor(ctx context.Context, username string) (authz.Actor, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return authz.System(), nil
	}
	identity, err := s.lookup.FindByUsername(ctx, username)
	if err != nil {
		if repo.IsNotFound(err) {
			s.logg.Warn(s.logg.WithField(ctx, "username", username), "seed.lock.changed_by_missing")
			return authz.System(), nil
		}
		return authz.Actor{}, fmt.Errorf("lookup identity %s: %w", username, err)
	}
	actor, err := s.identities.LoadActor(ctx, identity.ID)
	if err != nil {
		return authz.Actor{}, fmt.Errorf("load actor %s: %w", username, err)
	}
	return actor, nil
}

// Cleanup deletes every door (locks go with them) and every identity that is
// not a superuser. The reports summary is taken before and after.
func (s *Seeder) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	system := authz.System()

	before, err := s.reports.Summary(ctx, system)
	if err != nil {
		return res, fmt.Errorf("summary before cleanup: %w", err)
	}
	res.Before = *before

	doorIDs, err := s.doorIDs(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range doorIDs {
		if err := s.doors.Delete(ctx, system, id); err != nil {
			return res, fmt.Errorf("delete door %s: %w", id, err)
		}
		res.DoorsDeleted++
	}

	identityIDs, err := s.removableIdentityIDs(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range identityIDs {
		if err := s.identities.Delete(ctx, system, id); err != nil {
			return res, fmt.Errorf("delete identity %d: %w", id, err)
		}
		res.IdentitiesDeleted++
	}

	after, err := s.reports.Summary(ctx, system)
	if err != nil {
		return res, fmt.Errorf("summary after cleanup: %w", err)
	}
	res.After = *after
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"doors_deleted":      res.DoorsDeleted,
		"identities_deleted": res.IdentitiesDeleted,
	}), "seed.cleanup.done")
	return res, nil
}

// doorIDs collects ids up front so deletes do not shift the pages.
func (s *Seeder) doorIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	cursor := ""
	for {
		page, err := s.doors.List(ctx, authz.System(), doors.ListParams{Limit: pageSize, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list doors: %w", err)
		}
		for _, d := range page.Items {
			ids = append(ids, d.ID)
		}
		if page.NextCursor == "" {
			return ids, nil
		}
		cursor = page.NextCursor
	}
}

func (s *Seeder) removableIdentityIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	cursor := ""
	for {
		page, err := s.identities.List(ctx, authz.System(), identities.ListParams{Limit: pageSize, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list identities: %w", err)
		}
		for _, i := range page.Items {
			if !i.IsSuperuser {
				ids = append(ids, i.ID)
			}
		}
		if page.NextCursor == "" {
			return ids, nil
		}
		cursor = page.NextCursor
	}
}
