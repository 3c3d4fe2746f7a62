// Package session derives the pay2wash login state from server-rendered pages.
package session

import "fmt"

// Session is either *Unauthenticated or *Authenticated.
type Session interface {
	CSRFToken() string
	isSession()
}

// Unauthenticated is the state of the login form before credentials are posted.
type Unauthenticated struct {
	CSRF string
}

// Authenticated is a logged-in session scoped to one laundry location.
type Authenticated struct {
	CSRF      string
	UserToken uint32
	Location  string
	// MachineMappings maps the opaque numeric machine id to its display name.
	MachineMappings map[string]string
}

func (s *Unauthenticated) CSRFToken() string { return s.CSRF }
func (s *Authenticated) CSRFToken() string   { return s.CSRF }

func (*Unauthenticated) isSession() {}
func (*Authenticated) isSession()   {}

// MachineName resolves an opaque machine id to its display name.
func (s *Authenticated) MachineName(id string) (string, bool) {
	name, ok := s.MachineMappings[id]
	return name, ok
}

func (s *Authenticated) String() string {
	return fmt.Sprintf("authenticated session (location %s, %d machines)", s.Location, len(s.MachineMappings))
}
