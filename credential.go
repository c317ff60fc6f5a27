package tokenauth

// CredentialType identifies the shape of a credential's values.
type CredentialType int

const (
	// CredentialUnknown is the zero value and is never produced by this package.
	CredentialUnknown CredentialType = iota
	// CredentialJWTAccessToken carries a compact JWS under TokenValueKey.
	CredentialJWTAccessToken
)

// TokenValueKey is the credential value key holding the encoded token.
const TokenValueKey = "token"

func (t CredentialType) String() string {
	switch t {
	case CredentialJWTAccessToken:
		return "jwt_access_token"
	default:
		return "unknown"
	}
}

// Credential is an immutable, typed bag of values presented by a caller.
type Credential struct {
	typ    CredentialType
	values map[string]any
}

// NewCredential copies values into a new credential.
func NewCredential(typ CredentialType, values map[string]any) Credential {
	return Credential{typ: typ, values: copyValues(values)}
}

// NewAccessTokenCredential wraps an encoded token as a JWT access token credential.
func NewAccessTokenCredential(token string) Credential {
	return NewCredential(CredentialJWTAccessToken, map[string]any{TokenValueKey: token})
}

// Type returns the credential type.
func (c Credential) Type() CredentialType {
	return c.typ
}

// Value returns the value stored under key.
func (c Credential) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Values returns a copy of every value in the credential.
func (c Credential) Values() map[string]any {
	return copyValues(c.values)
}

func copyValues(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
