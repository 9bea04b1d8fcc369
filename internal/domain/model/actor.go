package model

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Actor is the authenticated identity behind an inbound event, produced
// by the auth collaborator at connect time.
type Actor struct {
	ID    string
	Email string
	Role  Role
}

func (a Actor) IsAgent() bool { return a.Role == RoleAgent }
