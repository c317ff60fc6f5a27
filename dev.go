package tokenauth

// DevBypassSubject describes the synthetic caller used when authentication is
// bypassed in local development.
type DevBypassSubject struct {
	PrincipalID string
	Roles       []string
}

// ToCaller converts the dev bypass configuration into a caller.
func (d DevBypassSubject) ToCaller() Caller {
	subject := NewSubject(
		[]Principal{{Type: PrincipalPrimary, ID: d.PrincipalID, Roles: append([]string{}, d.Roles...)}},
		nil,
	)
	return Caller{Subject: subject, DevBypass: true}
}

// DefaultDevBypassSubject returns a baseline subject suitable for local development.
func DefaultDevBypassSubject() DevBypassSubject {
	return DevBypassSubject{PrincipalID: "dev-bypass"}
}
