package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleTechnician       StaffRole = "TECHNICIAN"
	StaffRoleSeniorTechnician StaffRole = "SENIOR_TECHNICIAN"
	StaffRoleManager          StaffRole = "MANAGER"
	StaffRoleAdmin            StaffRole = "ADMIN"
)

// SeniorRoles are eligible escalation targets.
var SeniorRoles = []StaffRole{StaffRoleSeniorTechnician, StaffRoleManager, StaffRoleAdmin}

// StaffMember models a technician, manager or administrator of an MSP company.
type StaffMember struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	Role      StaffRole
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports whether the staff member holds role.
func (s *StaffMember) HasRole(role StaffRole) bool {
	return s != nil && s.Role == role
}

// IsSupervisor reports manager-level access.
func (s *StaffMember) IsSupervisor() bool {
	return s != nil && (s.Role == StaffRoleManager || s.Role == StaffRoleAdmin)
}
