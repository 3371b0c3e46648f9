package model

type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
	RoleFirm   Role = "firm"
	RoleAdmin  Role = "admin"
)

// User is the read-only view of an account owned by the accounts service.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

// Actor is the user summary embedded in notification payloads.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

func (u *User) Actor() *Actor {
	if u == nil {
		return nil
	}
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	return &Actor{ID: u.ID, Email: u.Email, Name: name, Role: u.Role}
}

// Transaction is the booking a room is opened for.
type Transaction struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	ProviderID   string `json:"provider_id"`
	ProviderRole Role   `json:"provider_role"`
}

// MultiMember reports whether the room may hold members beyond the founders.
func (t *Transaction) MultiMember() bool {
	return t.ProviderRole == RoleFirm
}
