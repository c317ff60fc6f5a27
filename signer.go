package tokenauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// Signer produces signatures over a token's signing input.
type Signer interface {
	Algorithm() jwa.SignatureAlgorithm
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// KeySigner signs with a key held in process.
type KeySigner struct {
	alg    jwa.SignatureAlgorithm
	key    any
	signer jws.Signer
}

// NewKeySigner returns a signer for alg. key is an HMAC secret ([]byte), a
// private key or a jwk.Key.
func NewKeySigner(alg jwa.SignatureAlgorithm, key any) (*KeySigner, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	if alg == "" || alg == jwa.NoSignature {
		return nil, errors.New("signature algorithm is required")
	}
	signer, err := jws.NewSigner(alg)
	if err != nil {
		return nil, fmt.Errorf("unsupported algorithm %q: %w", alg, err)
	}
	return &KeySigner{alg: alg, key: key, signer: signer}, nil
}

// Algorithm implements Signer.
func (s *KeySigner) Algorithm() jwa.SignatureAlgorithm {
	return s.alg
}

// Sign implements Signer.
func (s *KeySigner) Sign(_ context.Context, data []byte) ([]byte, error) {
	sig, err := s.signer.Sign(data, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// IAMSigner signs with a Google service account key that never leaves IAM.
// Signatures are RS256.
type IAMSigner struct {
	name      string
	delegates []string
	service   *iamcredentials.Service
}

// IAMSignerConfig configures an IAMSigner.
type IAMSignerConfig struct {
	ServiceAccount string
	Delegates      []string
	ClientOptions  []option.ClientOption
}

// NewIAMSigner creates an IAM Credentials client for cfg.ServiceAccount.
func NewIAMSigner(ctx context.Context, cfg IAMSignerConfig) (*IAMSigner, error) {
	account := strings.TrimSpace(cfg.ServiceAccount)
	if account == "" {
		return nil, errors.New("service account is required")
	}
	svc, err := iamcredentials.NewService(ctx, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("iamcredentials client: %w", err)
	}
	delegates := make([]string, 0, len(cfg.Delegates))
	for _, d := range cfg.Delegates {
		delegates = append(delegates, serviceAccountResource(d))
	}
	return &IAMSigner{
		name:      serviceAccountResource(account),
		delegates: delegates,
		service:   svc,
	}, nil
}

// Algorithm implements Signer.
func (s *IAMSigner) Algorithm() jwa.SignatureAlgorithm {
	return jwa.RS256
}

// Sign implements Signer.
func (s *IAMSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	req := &iamcredentials.SignBlobRequest{
		Delegates: s.delegates,
		Payload:   base64.StdEncoding.EncodeToString(data),
	}
	resp, err := s.service.Projects.ServiceAccounts.SignBlob(s.name, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sign blob: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(resp.SignedBlob)
	if err != nil {
		return nil, fmt.Errorf("decode signed blob: %w", err)
	}
	return sig, nil
}

func serviceAccountResource(account string) string {
	if strings.HasPrefix(account, "projects/") {
		return account
	}
	return "projects/-/serviceAccounts/" + account
}
