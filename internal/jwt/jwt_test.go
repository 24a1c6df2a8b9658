package jwt

import (
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func testIssuer() *Issuer {
	return NewIssuer("https://auth.example.com", []byte("0123456789abcdef0123456789abcdef"), time.Hour)
}

func TestIssueAndParseRoundtrip(t *testing.T) {
	iss := testIssuer()
	sub := "user-42"

	signed, exp, err := iss.IssueAccess(&sub, "kg_client_abc", "read:users write:users", "jti-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("exp too close: %v", exp)
	}

	got, err := ParseAccess(signed, iss)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if got.Subject != "user-42" || got.ClientID != "kg_client_abc" || got.JTI != "jti-1" {
		t.Errorf("claims = %+v", got)
	}
	if got.Scope != "read:users write:users" {
		t.Errorf("scope = %q", got.Scope)
	}
}

func TestIssueClientCredentialsHasNoSubject(t *testing.T) {
	iss := testIssuer()
	signed, _, err := iss.IssueAccess(nil, "kg_client_cc", "svc:read", "jti-cc")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	got, err := ParseAccess(signed, iss)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if got.Subject != "" {
		t.Errorf("Subject = %q, want empty", got.Subject)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	a := testIssuer()
	other := NewIssuer(a.Iss, []byte("another-secret-another-secret-32"), time.Hour)

	sub := "u"
	signed, _, err := other.IssueAccess(&sub, "kg_client_x", "s", "j")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := ParseAccess(signed, a); err == nil {
		t.Fatal("accepted token signed with a different secret")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	iss := testIssuer()
	other := NewIssuer("https://evil.example.com", iss.Secret, time.Hour)

	sub := "u"
	signed, _, _ := other.IssueAccess(&sub, "kg_client_x", "s", "j")
	if _, err := ParseAccess(signed, iss); err != ErrInvalidIssuer {
		t.Fatalf("err = %v, want ErrInvalidIssuer", err)
	}
}

func TestParseRejectsWrongTyp(t *testing.T) {
	iss := testIssuer()
	claims := jwtv5.MapClaims{
		"iss": iss.Iss,
		"cid": "kg_client_x",
		"jti": "j",
		"typ": "session",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(iss.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccess(signed, iss); err != ErrWrongTokenUse {
		t.Fatalf("err = %v, want ErrWrongTokenUse", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	iss := testIssuer()
	claims := jwtv5.MapClaims{
		"iss": iss.Iss,
		"cid": "kg_client_x",
		"jti": "j",
		"typ": TypeAccess,
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(iss.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccess(signed, iss); err == nil {
		t.Fatal("accepted expired token")
	}
}

func TestParseRejectsAlgNone(t *testing.T) {
	iss := testIssuer()
	// header {"alg":"none","typ":"JWT"} + claims sin firma
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, jwtv5.MapClaims{
		"iss": iss.Iss, "cid": "c", "jti": "j", "typ": TypeAccess,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tk.SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if !strings.HasSuffix(signed, ".") {
		t.Fatalf("unexpected none-signed form: %q", signed)
	}
	if _, err := ParseAccess(signed, iss); err == nil {
		t.Fatal("accepted alg=none token")
	}
}
