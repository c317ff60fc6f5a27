package tokenauth

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
)

var googleValidate = idtoken.Validate

// GoogleIssuer is the issuer of Google-signed ID tokens.
const GoogleIssuer = "https://accounts.google.com"

// GoogleVerifier verifies Google-signed ID tokens. Signature, expiry and
// audience are checked against Google's published certificates; issuer and
// required claims are checked against the verification context.
type GoogleVerifier struct {
	audience string
	timeout  time.Duration
}

// NewGoogleVerifier returns a verifier for tokens minted for audience.
func NewGoogleVerifier(audience string, timeout time.Duration) (*GoogleVerifier, error) {
	if strings.TrimSpace(audience) == "" {
		return nil, errors.New("audience is required")
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &GoogleVerifier{audience: audience, timeout: timeout}, nil
}

// Verify implements TokenVerifier.
func (g *GoogleVerifier) Verify(ctx context.Context, token *SignedToken, vc VerificationContext) (FailureReasons, error) {
	reasons := NewFailureReasons()
	if token == nil {
		reasons.Add(ReasonMalformed)
		return reasons, nil
	}

	validateCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := googleValidate(validateCtx, token.Encode(), g.audience); err != nil {
		reason, unavailable := mapGoogleError(err)
		if unavailable {
			return nil, err
		}
		reasons.Add(reason)
	}
	checkClaims(token, vc, reasons)
	return reasons, nil
}

// mapGoogleError classifies an idtoken validation error. unavailable is true
// when the failure says nothing about the token itself.
func mapGoogleError(err error) (reason FailureReason, unavailable bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "", true
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return "", true
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "audience provided does not match"):
		return ReasonAudienceMismatch, false
	case strings.Contains(msg, "token expired"):
		return ReasonExpired, false
	case strings.Contains(msg, "could not find matching cert"):
		return ReasonUnknownKey, false
	case strings.Contains(msg, "unable to decode JWT"), strings.Contains(msg, "idtoken: invalid token"):
		return ReasonMalformed, false
	}
	return ReasonBadSignature, false
}
