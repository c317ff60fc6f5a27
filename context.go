package tokenauth

import "context"

type callerKey struct{}

// Caller is the authenticated caller stored in a request context.
type Caller struct {
	Subject   *Subject
	Token     *SignedToken
	DevBypass bool
}

// BindCaller stores caller inside the context for downstream consumers.
func BindCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext retrieves a caller previously stored in the context.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	value := ctx.Value(callerKey{})
	if value == nil {
		return Caller{}, false
	}
	caller, ok := value.(Caller)
	return caller, ok
}

// SubjectFromContext returns the subject of the caller stored in ctx.
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	caller, ok := CallerFromContext(ctx)
	if !ok || caller.Subject == nil {
		return nil, false
	}
	return caller.Subject, true
}
