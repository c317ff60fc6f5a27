package tokenauth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrMalformedToken is wrapped by every ParseSignedToken failure.
var ErrMalformedToken = errors.New("malformed token")

var b64 = base64.RawURLEncoding

// Header is the JOSE header of a token.
type Header struct {
	Algorithm jwa.SignatureAlgorithm `json:"alg,omitempty"`
	Type      string                 `json:"typ,omitempty"`
	KeyID     string                 `json:"kid,omitempty"`
}

// DefaultHeader returns the header used when issuing tokens before the signer
// fills in the algorithm.
func DefaultHeader() Header {
	return Header{Type: "JWT"}
}

// UnsignedToken is a header and claims pair along with its signing input.
type UnsignedToken struct {
	header   Header
	claims   Claims
	token    jwt.Token
	unsigned []byte
}

// NewUnsignedToken encodes header and claims into their canonical signing input.
func NewUnsignedToken(header Header, claims Claims) (*UnsignedToken, error) {
	claims = claims.Clone()
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	tok, err := claims.toJWT()
	if err != nil {
		return nil, err
	}
	payloadJSON, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("encode claims: %w", err)
	}
	return &UnsignedToken{
		header:   header,
		claims:   claims,
		token:    tok,
		unsigned: joinSegments(headerJSON, payloadJSON),
	}, nil
}

// Header returns the token header.
func (t *UnsignedToken) Header() Header {
	return t.header
}

// Claims returns a copy of the token claims.
func (t *UnsignedToken) Claims() Claims {
	return t.claims.Clone()
}

// SigningInput returns the exact bytes a signer must sign.
func (t *UnsignedToken) SigningInput() []byte {
	return bytes.Clone(t.unsigned)
}

// SignedToken is a token together with its signature and the exact bytes that
// were signed.
type SignedToken struct {
	header    Header
	claims    Claims
	token     jwt.Token
	unsigned  []byte
	signature []byte
}

// NewSignedToken combines an unsigned token with its signature.
func NewSignedToken(unsigned *UnsignedToken, signature []byte) *SignedToken {
	return &SignedToken{
		header:    unsigned.header,
		claims:    unsigned.claims.Clone(),
		token:     unsigned.token,
		unsigned:  bytes.Clone(unsigned.unsigned),
		signature: bytes.Clone(signature),
	}
}

// ParseSignedToken decodes a compact JWS. The signed byte span is kept as
// received so verification never depends on re-serialization.
func ParseSignedToken(raw string) (*SignedToken, error) {
	if strings.Count(raw, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three segments", ErrMalformedToken)
	}
	protected, payload, signature, err := jws.SplitCompact([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	headerJSON, err := b64.DecodeString(string(protected))
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	payloadJSON, err := b64.DecodeString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	tok, claims, err := unmarshalClaims(payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	sig, err := b64.DecodeString(string(signature))
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformedToken, err)
	}

	unsigned := make([]byte, 0, len(protected)+1+len(payload))
	unsigned = append(unsigned, protected...)
	unsigned = append(unsigned, '.')
	unsigned = append(unsigned, payload...)

	return &SignedToken{
		header:    header,
		claims:    claims,
		token:     tok,
		unsigned:  unsigned,
		signature: sig,
	}, nil
}

// Header returns the token header.
func (t *SignedToken) Header() Header {
	return t.header
}

// Claims returns a copy of the token claims.
func (t *SignedToken) Claims() Claims {
	return t.claims.Clone()
}

// UnsignedValue returns the exact bytes covered by the signature.
func (t *SignedToken) UnsignedValue() []byte {
	return bytes.Clone(t.unsigned)
}

// Signature returns the raw signature bytes.
func (t *SignedToken) Signature() []byte {
	return bytes.Clone(t.signature)
}

// Encode returns the compact serialization of the token.
func (t *SignedToken) Encode() string {
	return string(t.unsigned) + "." + b64.EncodeToString(t.signature)
}

func joinSegments(header, payload []byte) []byte {
	out := make([]byte, 0, b64.EncodedLen(len(header))+1+b64.EncodedLen(len(payload)))
	out = b64.AppendEncode(out, header)
	out = append(out, '.')
	return b64.AppendEncode(out, payload)
}
