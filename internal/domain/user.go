package domain

type UserRole string

const (
	UserRoleRenter UserRole = "renter"
	UserRoleOwner  UserRole = "owner"
	UserRoleAdmin  UserRole = "admin"
)

type Standing string

const (
	StandingActive    Standing = "ACTIVE"
	StandingSuspended Standing = "SUSPENDED"
	StandingBanned    Standing = "BANNED"
)

func (s Standing) IsValid() bool {
	return s == StandingActive || s == StandingSuspended || s == StandingBanned
}

// IsSanctioned reports whether the standing withdraws booking rights.
func (s Standing) IsSanctioned() bool {
	return s == StandingSuspended || s == StandingBanned
}

type User struct {
	ID       int32    `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
	Standing Standing `json:"standing"`
}
