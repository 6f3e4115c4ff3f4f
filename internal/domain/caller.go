package domain

// Caller is the authenticated identity every service operation acts on behalf of.
// It can only be built from a loaded User, so holding one means the identity was
// verified by the auth layer.
type Caller struct {
	dni   string
	email string
	admin bool
}

// CallerFor builds the caller identity for an authenticated, active user
func CallerFor(u *User) Caller {
	return Caller{dni: u.DNI, email: u.Email, admin: u.Administrator}
}

// DNI of the caller
func (c Caller) DNI() string { return c.dni }

// Email of the caller
func (c Caller) Email() string { return c.email }

// IsAdmin reports whether the caller holds administrator rights
func (c Caller) IsAdmin() bool { return c.admin }

// Authenticated reports whether the caller carries an identity
func (c Caller) Authenticated() bool { return c.dni != "" }
