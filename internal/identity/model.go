package identity

import "time"

// User roles known to the marketplace.
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleAdmin    = "admin"
)

// User represents a registered marketplace account.
type User struct {
	ID         string
	Phone      string
	FullName   string
	ReadableID string
	Role       string
	PINHash    []byte
	CreatedAt  time.Time
}

// Credentials request structure.
type Credentials struct {
	Phone string
	PIN   string
}
