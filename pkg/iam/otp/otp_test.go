package otp_test

import (
	"testing"

	"github.com/beejcap/lsp-auth/pkg/iam/otp"
)

func TestParseMobile(t *testing.T) {
	valid := []string{"+915550001111", "+12025550123", "+4915112345678"}
	for _, raw := range valid {
		if _, err := otp.ParseMobile(raw); err != nil {
			t.Fatalf("%s rejected: %v", raw, err)
		}
	}

	invalid := []string{"", "915550001111", "+0915550001111", "+91555abc", "+1234567890123456", "+1"}
	for _, raw := range invalid {
		if _, err := otp.ParseMobile(raw); err == nil {
			t.Fatalf("%s accepted", raw)
		}
	}
}

func TestParseCode(t *testing.T) {
	if err := otp.ParseCode("123456"); err != nil {
		t.Fatalf("valid code rejected: %v", err)
	}

	invalid := []string{"", "12345", "1234567", "abcdef", "12345x", " 23456"}
	for _, raw := range invalid {
		if err := otp.ParseCode(raw); err == nil {
			t.Fatalf("%q accepted", raw)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := otp.GenerateCode()
		if err != nil {
			t.Fatalf("generation failed: %v", err)
		}
		if len(code) != otp.CodeLength {
			t.Fatalf("wrong length: %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code: %q", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("codes are not varying")
	}
}
