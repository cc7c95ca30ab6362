package security_test

import (
	"strings"
	"testing"

	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/security"
)

var fastParams = config.PasswordConfig{
	ArgonMemoryKB:    8 * 1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("director123", fastParams)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := security.VerifyPassword("director123", hash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword failed for the correct password: ok=%v err=%v", ok, err)
	}
	ok, err = security.VerifyPassword("maestro123", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for wrong password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	a, _ := security.HashPassword("alumno123", fastParams)
	b, _ := security.HashPassword("alumno123", fastParams)
	if a == b {
		t.Fatal("expected different salts")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	for _, encoded := range []string{"not-a-hash", "$argon2id$v=18$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$m=x$AA$AA", "$bcrypt$v=19$m=1,t=1,p=1$AA$AA"} {
		if _, err := security.VerifyPassword("irrelevant", encoded); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, _ := security.HashPassword("director123", fastParams)
	if security.NeedsRehash(hash, fastParams) {
		t.Fatal("same params should not need rehash")
	}
	stronger := fastParams
	stronger.ArgonTime = 3
	if !security.NeedsRehash(hash, stronger) {
		t.Fatal("stronger params should need rehash")
	}
	if !security.NeedsRehash("garbage", fastParams) {
		t.Fatal("garbage should need rehash")
	}
}

func TestCheckPassword(t *testing.T) {
	cases := map[string]bool{
		"alumno123":  true,
		"short1":     false,
		"12345678":   false,
		"contraseña": true,
	}
	for password, valid := range cases {
		if err := security.CheckPassword(password); (err == nil) != valid {
			t.Fatalf("CheckPassword(%q) = %v, want valid=%v", password, err, valid)
		}
	}
}
