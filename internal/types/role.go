package types

// Role classifies a live connection at handshake time. The set is closed:
// handlers gate on these values instead of matching raw claim strings.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleVisitor Role = "visitor"
	RoleStaff   Role = "staff"
)

func (r Role) IsStaff() bool {
	return r == RoleStaff
}
