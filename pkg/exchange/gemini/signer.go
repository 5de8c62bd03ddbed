package gemini

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"gemsync/pkg/core"
)

// Header names of an authenticated Gemini request.
const (
	HeaderAPIKey    = "X-GEMINI-APIKEY"
	HeaderPayload   = "X-GEMINI-PAYLOAD"
	HeaderSignature = "X-GEMINI-SIGNATURE"
)

// canonicalJSON sorts map keys so the same payload always encodes to the same bytes.
var canonicalJSON = sonic.Config{SortMapKeys: true}.Froze()

// SignedRequest is the authentication material of one attempt of a privileged call.
type SignedRequest struct {
	Path      string
	Nonce     string
	Payload   string
	Signature string
	apiKey    string
}

// Headers renders the header set attached to a privileged request.
func (s SignedRequest) Headers() map[string]string {
	return map[string]string{
		"Content-Type":   "text/plain",
		"Content-Length": "0",
		"Cache-Control":  "no-cache",
		HeaderAPIKey:     s.apiKey,
		HeaderPayload:    s.Payload,
		HeaderSignature:  s.Signature,
	}
}

// Signer builds Gemini authentication headers with HMAC-SHA384.
type Signer struct {
	apiKey string
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer for the given credentials.
func NewSigner(creds core.Credentials) *Signer {
	return &Signer{
		apiKey: creds.APIKey,
		secret: []byte(creds.SecretKey),
		now:    time.Now,
	}
}

// SetClock replaces the nonce time source, for tests.
func (s *Signer) SetClock(now func() time.Time) {
	s.now = now
}

// Sign encodes {request: path, nonce: nonce, ...payload} as JSON, base64-encodes
// it and signs the base64 text. The request and nonce keys always win over
// payload entries of the same name.
func (s *Signer) Sign(path string, payload core.Params, nonce string) (SignedRequest, error) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["request"] = path
	body["nonce"] = nonce

	encoded, err := canonicalJSON.Marshal(body)
	if err != nil {
		return SignedRequest{}, fmt.Errorf("encode payload: %w", err)
	}

	b64 := base64.StdEncoding.EncodeToString(encoded)
	mac := hmac.New(sha512.New384, s.secret)
	mac.Write([]byte(b64))

	return SignedRequest{
		Path:      path,
		Nonce:     nonce,
		Payload:   b64,
		Signature: hex.EncodeToString(mac.Sum(nil)),
		apiKey:    s.apiKey,
	}, nil
}

// SignNow signs with the current time in milliseconds as nonce.
func (s *Signer) SignNow(path string, payload core.Params) (SignedRequest, error) {
	return s.Sign(path, payload, strconv.FormatInt(s.now().UnixMilli(), 10))
}
