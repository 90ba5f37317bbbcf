package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// OrgUser is a principal in the organizational directory. RoleIDs is kept
// denormalized as a uuid array; membership checks are per-snapshot, not
// per-query.
type OrgUser struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID     string         `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	DisplayName  string         `gorm:"type:varchar(255)" json:"displayName,omitempty"`
	Email        string         `gorm:"type:varchar(255)" json:"email,omitempty"`
	DepartmentID *uuid.UUID     `gorm:"type:uuid;index" json:"departmentId,omitempty"`
	PositionID   *uuid.UUID     `gorm:"type:uuid" json:"positionId,omitempty"`
	SystemLevel  string         `gorm:"type:varchar(50);index" json:"systemLevel,omitempty"`
	RoleIDs      pq.StringArray `gorm:"type:uuid[]" json:"roleIds"`
	IsActive     bool           `gorm:"default:true" json:"isActive"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for OrgUser
func (OrgUser) TableName() string {
	return "org_users"
}

// HasRole reports whether the user holds the given role.
func (u *OrgUser) HasRole(roleID uuid.UUID) bool {
	id := roleID.String()
	for _, r := range u.RoleIDs {
		if r == id {
			return true
		}
	}
	return false
}

// OrgRole is a named role principals can hold.
type OrgRole struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID  string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	IsActive  bool      `gorm:"default:true" json:"isActive"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for OrgRole
func (OrgRole) TableName() string {
	return "org_roles"
}

// Department is a node in the organizational hierarchy. The tree is stored
// flat with an explicit parent id; traversal is iterative over an index.
type Department struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID  string         `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	ParentID  *uuid.UUID     `gorm:"type:uuid;index" json:"parentId,omitempty"`
	Level     int            `gorm:"default:0" json:"level"`
	IsActive  bool           `gorm:"default:true" json:"isActive"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for Department
func (Department) TableName() string {
	return "departments"
}

// Position is a job position with a numeric seniority level.
type Position struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID  string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Level     int       `gorm:"default:0" json:"level"`
	IsActive  bool      `gorm:"default:true" json:"isActive"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for Position
func (Position) TableName() string {
	return "positions"
}

// OrgSnapshot is a consistently-read, immutable view of the directory for
// the duration of one decision. Indexes are built once at construction; the
// snapshot itself is never mutated by the decision core.
type OrgSnapshot struct {
	Users       []OrgUser
	Roles       []OrgRole
	Departments []Department
	Positions   []Position

	usersByID   map[uuid.UUID]*OrgUser
	deptsByID   map[uuid.UUID]*Department
	positionsBy map[uuid.UUID]*Position
	childDepts  map[uuid.UUID][]uuid.UUID
}

// NewOrgSnapshot builds a snapshot with its lookup indexes.
func NewOrgSnapshot(users []OrgUser, roles []OrgRole, departments []Department, positions []Position) *OrgSnapshot {
	s := &OrgSnapshot{
		Users:       users,
		Roles:       roles,
		Departments: departments,
		Positions:   positions,
		usersByID:   make(map[uuid.UUID]*OrgUser, len(users)),
		deptsByID:   make(map[uuid.UUID]*Department, len(departments)),
		positionsBy: make(map[uuid.UUID]*Position, len(positions)),
		childDepts:  make(map[uuid.UUID][]uuid.UUID),
	}
	for i := range users {
		s.usersByID[users[i].ID] = &s.Users[i]
	}
	for i := range departments {
		d := &s.Departments[i]
		s.deptsByID[d.ID] = d
		if d.ParentID != nil {
			s.childDepts[*d.ParentID] = append(s.childDepts[*d.ParentID], d.ID)
		}
	}
	for i := range positions {
		s.positionsBy[positions[i].ID] = &s.Positions[i]
	}
	return s
}

// UserByID returns the user with the given id, or nil.
func (s *OrgSnapshot) UserByID(id uuid.UUID) *OrgUser {
	return s.usersByID[id]
}

// DepartmentByID returns the department with the given id, or nil.
func (s *OrgSnapshot) DepartmentByID(id uuid.UUID) *Department {
	return s.deptsByID[id]
}

// PositionByID returns the position with the given id, or nil.
func (s *OrgSnapshot) PositionByID(id uuid.UUID) *Position {
	return s.positionsBy[id]
}

// ActiveUsers returns all active users in the snapshot.
func (s *OrgSnapshot) ActiveUsers() []OrgUser {
	out := make([]OrgUser, 0, len(s.Users))
	for _, u := range s.Users {
		if u.IsActive {
			out = append(out, u)
		}
	}
	return out
}

// DepartmentAncestors walks parent links from the given department to the
// root, returning ancestor ids nearest-first. The walk is bounded by the
// department count so a malformed cycle cannot loop forever.
func (s *OrgSnapshot) DepartmentAncestors(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	current := s.deptsByID[id]
	for i := 0; current != nil && current.ParentID != nil && i < len(s.Departments); i++ {
		out = append(out, *current.ParentID)
		current = s.deptsByID[*current.ParentID]
	}
	return out
}

// DepartmentDescendants returns every department under the given one,
// breadth-first over the child index.
func (s *OrgSnapshot) DepartmentDescendants(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	seen := map[uuid.UUID]bool{id: true}
	queue := append([]uuid.UUID(nil), s.childDepts[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, s.childDepts[next]...)
	}
	return out
}
