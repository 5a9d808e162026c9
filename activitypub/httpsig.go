package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log"
	"net/http"
	"strings"

	"code.superseriousbusiness.org/httpsig"
)

// GenerateKeyPair produces a 2048-bit RSA key pair as PEM, SPKI encoding for
// the public key and PKCS8 for the private key.
func GenerateKeyPair() (string, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key pair: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode private key: %w", err)
	}
	privPem := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privBytes,
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode public key: %w", err)
	}
	pubPem := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return string(pubPem), string(privPem), nil
}

// SignString computes an RSA-SHA256 signature over the exact byte sequence of
// data and returns it base64-encoded.
func SignString(data string, privateKeyPem string) (string, error) {
	key, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return "", fmt.Errorf("failed to sign data: %w", err)
	}

	hashed := sha256.Sum256([]byte(data))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign data: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// BuildSignatureHeader formats the HTTP Signature header value.
func BuildSignatureHeader(keyId string, signature string, headers []string) string {
	return fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`,
		keyId, strings.Join(headers, " "), signature)
}

// SignatureParams are the parsed parameters of a Signature header. Headers
// keeps the signer's order, which the canonical string must reproduce.
type SignatureParams struct {
	KeyId     string
	Signature string
	Algorithm string
	Headers   []string
}

// ParseSignatureHeader parses a comma-separated list of key="value" pairs.
// Returns nil unless all four of keyId, signature, algorithm and headers are
// present and every pair is well-formed.
func ParseSignatureHeader(header string) *SignatureParams {
	parts := map[string]string{}
	for _, pair := range strings.Split(header, ",") {
		pair = strings.TrimSpace(pair)
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return nil
		}
		if len(value) < 2 || !strings.HasPrefix(value, `"`) || !strings.HasSuffix(value, `"`) {
			return nil
		}
		parts[name] = value[1 : len(value)-1]
	}

	if parts["keyId"] == "" || parts["signature"] == "" || parts["algorithm"] == "" || parts["headers"] == "" {
		return nil
	}

	return &SignatureParams{
		KeyId:     parts["keyId"],
		Signature: parts["signature"],
		Algorithm: parts["algorithm"],
		Headers:   strings.Split(parts["headers"], " "),
	}
}

// VerifyRequest checks the HTTP signature of an inbound request against the
// sender's public key. It fails closed: any missing or malformed input, an
// algorithm other than rsa-sha256, a Host header not naming expectedHost, or
// a crypto failure all yield false, never an error.
func VerifyRequest(r *http.Request, publicKeyPem string, expectedHost string) bool {
	params := ParseSignatureHeader(r.Header.Get("Signature"))
	if params == nil {
		log.Printf("Verify: missing or malformed Signature header")
		return false
	}

	if strings.ToLower(params.Algorithm) != "rsa-sha256" {
		log.Printf("Verify: unsupported signature algorithm %q", params.Algorithm)
		return false
	}

	// The Host header must name this server, not whoever the signature was
	// originally produced for.
	if !strings.EqualFold(r.Host, expectedHost) {
		log.Printf("Verify: request host %q does not match local domain %q", r.Host, expectedHost)
		return false
	}

	canonical, ok := canonicalString(r, params.Headers)
	if !ok {
		return false
	}

	pubKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		log.Printf("Verify: %v", err)
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(params.Signature)
	if err != nil {
		log.Printf("Verify: signature is not valid base64: %v", err)
		return false
	}

	hashed := sha256.Sum256([]byte(canonical))
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, hashed[:], sig); err != nil {
		log.Printf("Verify: signature verification failed: %v", err)
		return false
	}

	return true
}

// canonicalString reconstructs the string the remote signer signed, one line
// per header name in the signer's order.
func canonicalString(r *http.Request, headerNames []string) (string, bool) {
	lines := make([]string, 0, len(headerNames))
	for _, name := range headerNames {
		switch strings.ToLower(name) {
		case "(request-target)":
			lines = append(lines, fmt.Sprintf("(request-target): %s %s", strings.ToLower(r.Method), r.URL.Path))
		case "host":
			if r.Host == "" {
				log.Printf("Verify: request has no host")
				return "", false
			}
			lines = append(lines, "host: "+r.Host)
		case "digest":
			digest := r.Header.Get("Digest")
			if digest == "" {
				log.Printf("Verify: signed header digest is missing")
				return "", false
			}
			lines = append(lines, "digest: "+digest)
		default:
			value := r.Header.Get(name)
			if value == "" {
				log.Printf("Verify: signed header %q is missing", name)
				return "", false
			}
			lines = append(lines, strings.ToLower(name)+": "+value)
		}
	}
	return strings.Join(lines, "\n"), true
}

// SignRequest signs an outgoing HTTP request with the given private key.
// keyId format: "https://example.com/ap/users/alice#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{"(request-target)", "host", "date", "digest"},
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	return signer.SignRequest(privateKey, keyId, req, nil)
}

// ParsePrivateKey converts a PEM string to *rsa.PrivateKey. Accepts PKCS8 and
// PKCS1 encodings.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return key, nil
}

// ParsePublicKey converts a PEM string to *rsa.PublicKey. Accepts SPKI and
// PKCS1 encodings.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return key, nil
}
