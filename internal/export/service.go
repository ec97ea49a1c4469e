package export

import (
	"context"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	cycledomain "github.com/smallbiznis/nexus360/internal/cycle/domain"
	"github.com/smallbiznis/nexus360/internal/orgcontext"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("export.service",
	fx.Provide(New),
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Users       userdomain.Repository
	Assignments assignmentdomain.Repository
	Cycles      cycledomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	users       userdomain.Repository
	assignments assignmentdomain.Repository
	cycles      cycledomain.Service
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("export.service"),
		users:       p.Users,
		assignments: p.Assignments,
		cycles:      p.Cycles,
	}
}

// UserRoster never includes password hashes.
func (s *Service) UserRoster(ctx context.Context) (Table, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return Table{}, userdomain.ErrInvalidOrganization
	}
	users, err := s.users.List(ctx, s.db, orgID, userdomain.ListFilter{})
	if err != nil {
		return Table{}, err
	}

	t := Table{Header: []string{"id", "name", "username", "email", "role", "department", "manager_id"}}
	for _, u := range users {
		if u == nil {
			continue
		}
		managerID := ""
		if u.ManagerID != nil {
			managerID = u.ManagerID.String()
		}
		t.Rows = append(t.Rows, []string{
			u.ID.String(),
			u.Name,
			u.Username,
			u.Email,
			string(u.Role),
			u.Department,
			managerID,
		})
	}
	return t, nil
}

// AssignmentRoster lists the cycle's assignments with reviewer and subject
// names. A nil cycleID selects the active cycle.
func (s *Service) AssignmentRoster(ctx context.Context, cycleID *snowflake.ID) (Table, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return Table{}, userdomain.ErrInvalidOrganization
	}
	cycle, err := s.cycles.Resolve(ctx, s.db, orgID, cycleID)
	if err != nil {
		return Table{}, err
	}
	users, err := s.users.List(ctx, s.db, orgID, userdomain.ListFilter{})
	if err != nil {
		return Table{}, err
	}
	names := make(map[snowflake.ID]string, len(users))
	for _, u := range users {
		if u != nil {
			names[u.ID] = u.Name
		}
	}
	assignments, err := s.assignments.List(ctx, s.db, orgID, assignmentdomain.ListFilter{CycleID: &cycle.ID})
	if err != nil {
		return Table{}, err
	}

	t := Table{Header: []string{"id", "reviewer", "subject", "relationship", "status", "cycle"}}
	for _, a := range assignments {
		if a == nil {
			continue
		}
		t.Rows = append(t.Rows, []string{
			a.ID.String(),
			nameOr(names, a.ReviewerID),
			nameOr(names, a.SubjectID),
			string(a.Relationship),
			string(a.Status),
			cycle.Name,
		})
	}
	return t, nil
}

func nameOr(names map[snowflake.ID]string, id snowflake.ID) string {
	if name, ok := names[id]; ok {
		return name
	}
	return id.String()
}
