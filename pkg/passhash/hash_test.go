package passhash

import "testing"

func TestHashPassword_Roundtrip(t *testing.T) {
	encoded, err := HashPasswordWithIters("correct horse battery staple", 1000)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := VerifyPassword("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("correct password must verify")
	}
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	encoded, err := HashPasswordWithIters("secret-one", 1000)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := VerifyPassword("secret-two", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("wrong password must not verify")
	}
}

func TestHashPassword_SaltedHashesDiffer(t *testing.T) {
	h1, err := HashPasswordWithIters("same password", 1000)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPasswordWithIters("same password", 1000)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("salted hashes of the same password should differ")
	}
}

func TestVerifyPassword_MalformedEncoding(t *testing.T) {
	if _, err := VerifyPassword("whatever", "not-a-phc-string"); err == nil {
		t.Fatalf("malformed encoding must error")
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	encoded, err := HashPasswordWithIters("benchmark password", 1000)
	if err != nil {
		b.Fatalf("hash: %v", err)
	}

	for b.Loop() {
		_, _ = VerifyPassword("benchmark password", encoded)
	}
}
