package tokens

import (
	"strings"
	"testing"
)

func TestGenerateOpaqueToken_UniqueAndURLSafe(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateOpaqueToken(32)
		if err != nil {
			t.Fatalf("GenerateOpaqueToken err: %v", err)
		}
		if seen[tok] {
			t.Fatalf("token repetido: %s", tok)
		}
		seen[tok] = true
		if strings.ContainsAny(tok, "+/=") {
			t.Fatalf("token no es base64url: %s", tok)
		}
	}
}

func TestSHA256Base64URL_Deterministic(t *testing.T) {
	a := SHA256Base64URL("hola")
	b := SHA256Base64URL("hola")
	if a != b {
		t.Fatal("hash no determinista")
	}
	if a == SHA256Base64URL("chau") {
		t.Fatal("colisión trivial")
	}
	if a == "hola" || len(a) != 43 {
		t.Fatalf("hash sospechoso: %q", a)
	}
}

func TestNumericCode_LengthAndDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NumericCode(6)
		if err != nil {
			t.Fatalf("NumericCode err: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("len=%d want 6", len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("código con no-dígito: %q", code)
			}
		}
	}
}
