package tokenauth

// PrincipalType categorizes one identity facet of a subject.
type PrincipalType int

const (
	PrincipalUnknown PrincipalType = iota
	PrincipalPrimary
)

func (t PrincipalType) String() string {
	switch t {
	case PrincipalPrimary:
		return "primary"
	default:
		return "unknown"
	}
}

// Principal is a single identity with the roles granted to it.
type Principal struct {
	Type  PrincipalType
	ID    string
	Roles []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Subject is an authenticated identity together with the credentials that proved it.
type Subject struct {
	principals  []Principal
	credentials []Credential
}

// NewSubject copies principals and credentials into a new subject.
func NewSubject(principals []Principal, credentials []Credential) *Subject {
	s := &Subject{
		principals:  make([]Principal, len(principals)),
		credentials: append([]Credential(nil), credentials...),
	}
	for i, p := range principals {
		p.Roles = cloneStrings(p.Roles)
		s.principals[i] = p
	}
	return s
}

// PrimaryPrincipal returns the first principal of type PrincipalPrimary.
func (s *Subject) PrimaryPrincipal() (Principal, bool) {
	if s == nil {
		return Principal{}, false
	}
	for _, p := range s.principals {
		if p.Type == PrincipalPrimary {
			p.Roles = cloneStrings(p.Roles)
			return p, true
		}
	}
	return Principal{}, false
}

// Principals returns a copy of the subject's principals.
func (s *Subject) Principals() []Principal {
	if s == nil {
		return nil
	}
	out := make([]Principal, len(s.principals))
	for i, p := range s.principals {
		p.Roles = cloneStrings(p.Roles)
		out[i] = p
	}
	return out
}

// Credentials returns a copy of the subject's credentials.
func (s *Subject) Credentials() []Credential {
	if s == nil {
		return nil
	}
	return append([]Credential(nil), s.credentials...)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
