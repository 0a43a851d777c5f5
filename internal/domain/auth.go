package domain

// Action is a capability evaluated by the authorization engine.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// AuthContext identifies the actor of a request.
//
// Fields are unexported so a context cannot be edited after construction;
// build one with NewAuthContext or AuthContextFor.
type AuthContext struct {
	userID string
	role   Role
	teamID string
}

// NewAuthContext creates an actor context from explicit values.
func NewAuthContext(userID string, role Role, teamID string) AuthContext {
	return AuthContext{userID: userID, role: role, teamID: teamID}
}

// AuthContextFor creates an actor context from a directory entry.
func AuthContextFor(u User) AuthContext {
	return NewAuthContext(u.ID, u.Role, u.TeamID)
}

// UserID returns the actor's user ID.
func (a AuthContext) UserID() string { return a.userID }

// Role returns the actor's role.
func (a AuthContext) Role() Role { return a.role }

// TeamID returns the actor's team ID, empty when the actor has none.
func (a AuthContext) TeamID() string { return a.teamID }

// IsZero reports whether the context carries no identity.
func (a AuthContext) IsZero() bool { return a.userID == "" }
