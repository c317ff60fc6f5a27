package tokenauth

import "testing"

func TestCredentialIsImmutable(t *testing.T) {
	values := map[string]any{TokenValueKey: "abc"}
	cred := NewCredential(CredentialJWTAccessToken, values)
	values[TokenValueKey] = "changed"

	if v, _ := cred.Value(TokenValueKey); v != "abc" {
		t.Fatalf("credential changed through caller map: %v", v)
	}
	out := cred.Values()
	out[TokenValueKey] = "changed"
	if v, _ := cred.Value(TokenValueKey); v != "abc" {
		t.Fatalf("credential changed through Values(): %v", v)
	}
}

func TestSubjectCopiesPrincipals(t *testing.T) {
	roles := []string{"admin"}
	subject := NewSubject([]Principal{{Type: PrincipalPrimary, ID: "u", Roles: roles}}, nil)
	roles[0] = "root"

	p, ok := subject.PrimaryPrincipal()
	if !ok || p.Roles[0] != "admin" {
		t.Fatalf("subject roles aliased caller slice: %+v", p)
	}
	p.Roles[0] = "root"
	if again, _ := subject.PrimaryPrincipal(); again.Roles[0] != "admin" {
		t.Fatalf("subject roles aliased returned slice")
	}

	var empty *Subject
	if _, ok := empty.PrimaryPrincipal(); ok {
		t.Fatalf("nil subject has no primary principal")
	}
}
