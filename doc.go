// Package tokenauth turns bearer credentials into verified subjects and
// subjects back into signed, time-bounded bearer credentials.
//
// Authenticator parses a JWT access token, delegates the trust decision to a
// TokenVerifier and reduces the verifier's failure reasons to a coarse error
// code. CredentialIssuer assembles claims for a subject, runs the configured
// ClaimsPopulators and delegates signing to a Signer.
package tokenauth
