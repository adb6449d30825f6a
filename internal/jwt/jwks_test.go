package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestJWK_PublicKeyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen: %v", err)
	}
	jwk := NewJWK("kid-1", &priv.PublicKey)

	pub, err := jwk.PublicKey()
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 || pub.E != priv.PublicKey.E {
		t.Fatalf("rebuilt key differs from original")
	}
}

func TestJWK_RejectsBadEncoding(t *testing.T) {
	bad := JWK{Kty: "RSA", N: "!!!not-base64url!!!", E: "AQAB"}
	if _, err := bad.PublicKey(); err == nil {
		t.Fatalf("expected error for invalid modulus encoding")
	}
	wrongKty := JWK{Kty: "OKP", N: "AQAB", E: "AQAB"}
	if _, err := wrongKty.PublicKey(); err == nil {
		t.Fatalf("expected error for unsupported kty")
	}
}

func TestJWKS_Find(t *testing.T) {
	set := JWKS{Keys: []JWK{{KID: "a"}, {KID: "b"}}}
	if _, ok := set.Find("b"); !ok {
		t.Fatalf("expected to find kid b")
	}
	if _, ok := set.Find("zz"); ok {
		t.Fatalf("did not expect to find unknown kid")
	}
}
