package mysql

import (
	"crypto/sha512"

	"filippo.io/edwards25519"
)

// signEd25519 implements MariaDB's client_ed25519 plugin: the password
// is hashed to an Ed25519 seed, and the server's scramble is signed
// with the resulting keypair (spec §4.E, MariaDB auth extension listed
// in the domain stack). Unlike the two password-scramble plugins above,
// the "response" here is a detached signature, not a XORed digest.
func signEd25519(scramble []byte, password string) []byte {
	seed := sha512.Sum512([]byte(password))

	h := sha512.Sum512(seed[:32])
	var s edwards25519.Scalar
	if _, err := s.SetBytesWithClamping(h[:32]); err != nil {
		return nil
	}

	pub := (&edwards25519.Point{}).ScalarBaseMult(&s).Bytes()

	// Deterministic nonce per RFC 8032: SHA512(prefix || message).
	nonceInput := append(append([]byte{}, h[32:]...), scramble...)
	nonceHash := sha512.Sum512(nonceInput)
	var r edwards25519.Scalar
	if _, err := r.SetUniformBytes(nonceHash[:]); err != nil {
		return nil
	}
	R := (&edwards25519.Point{}).ScalarBaseMult(&r).Bytes()

	kInput := append(append(append([]byte{}, R...), pub...), scramble...)
	kHash := sha512.Sum512(kInput)
	var k edwards25519.Scalar
	if _, err := k.SetUniformBytes(kHash[:]); err != nil {
		return nil
	}

	var S edwards25519.Scalar
	S.MultiplyAdd(&k, &s, &r)

	sig := make([]byte, 0, 64)
	sig = append(sig, R...)
	sig = append(sig, S.Bytes()...)
	return sig
}
