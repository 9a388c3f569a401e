package domain

// Actor is the principal performing a ticket change.
type Actor struct {
	ID        string
	Type      ActorType
	CompanyID string
	Role      StaffRole
}

// SystemActor represents automated changes such as escalations.
func SystemActor(companyID string) Actor {
	return Actor{Type: ActorTypeSystem, CompanyID: companyID}
}

// IsSystem reports whether the change originates from automation.
func (a Actor) IsSystem() bool {
	return a.Type == ActorTypeSystem
}

// HistoryID returns the actor id for audit rows, nil for system changes.
func (a Actor) HistoryID() *string {
	if a.IsSystem() || a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}
