package mysql

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
)

// Authentication plugin names the server/client negotiate over (spec
// §4.E).
const (
	authNativePassword = "mysql_native_password"
	authCachingSHA2    = "caching_sha2_password"
	authEd25519        = "client_ed25519"
)

// scrambleNative implements mysql_native_password:
//
//	SHA1(password) XOR SHA1(scramble + SHA1(SHA1(password)))
func scrambleNative(scramble []byte, password string) []byte {
	if password == "" {
		return nil
	}
	h1 := sha1.Sum([]byte(password))
	h2 := sha1.Sum(h1[:])

	h := sha1.New()
	h.Write(scramble)
	h.Write(h2[:])
	h3 := h.Sum(nil)

	out := make([]byte, sha1.Size)
	for i := range out {
		out[i] = h1[i] ^ h3[i]
	}
	return out
}

// scrambleCachingSHA2 implements caching_sha2_password's fast-auth
// scramble:
//
//	XOR(SHA256(password), SHA256(SHA256(SHA256(password)), scramble))
func scrambleCachingSHA2(scramble []byte, password string) []byte {
	if password == "" {
		return nil
	}
	h1 := sha256.Sum256([]byte(password))
	h2 := sha256.Sum256(h1[:])

	h := sha256.New()
	h.Write(h2[:])
	h.Write(scramble)
	h3 := h.Sum(nil)

	out := make([]byte, sha256.Size)
	for i := range out {
		out[i] = h1[i] ^ h3[i]
	}
	return out
}

// encryptPasswordRSA implements caching_sha2_password full-auth: the
// password, XORed byte-by-byte against a cycled copy of the scramble,
// is RSA-OAEP(SHA1) encrypted under the server's public key (spec
// §4.E, the non-TLS full-auth path).
func encryptPasswordRSA(password string, scramble []byte, pubPEM []byte) ([]byte, error) {
	block, _ := pem.Decode(pubPEM)
	if block == nil {
		return nil, &AuthError{Reason: "invalid RSA public key PEM from server"}
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &AuthError{Reason: "cannot parse server RSA public key: " + err.Error()}
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, &AuthError{Reason: "server public key is not RSA"}
	}

	plain := append([]byte(password), 0)
	xored := make([]byte, len(plain))
	for i := range plain {
		xored[i] = plain[i] ^ scramble[i%len(scramble)]
	}

	return rsa.EncryptOAEP(sha1.New(), rand.Reader, rsaPub, xored, nil)
}

// computeAuthResponse returns the initial auth-response bytes to embed
// in the handshake response packet for the given plugin.
func computeAuthResponse(plugin string, scramble []byte, password string) ([]byte, error) {
	switch plugin {
	case authNativePassword:
		return scrambleNative(scramble, password), nil
	case authCachingSHA2:
		return scrambleCachingSHA2(scramble, password), nil
	case authEd25519:
		return signEd25519(scramble, password), nil
	default:
		return nil, &AuthError{Reason: "unsupported authentication plugin: " + plugin}
	}
}

// normalizeScramble strips the trailing NUL the handshake packet's two
// scramble fragments are terminated with before concatenation.
func normalizeScramble(part1, part2 []byte) []byte {
	scramble := make([]byte, 0, len(part1)+len(part2))
	scramble = append(scramble, bytes.TrimRight(part1, "\x00")...)
	scramble = append(scramble, bytes.TrimRight(part2, "\x00")...)
	return scramble
}
