package internal

import "testing"

func TestNewOTP(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		if !IsDigits(code) {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}

	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestOTPEqual(t *testing.T) {
	digest := HashOTP("482910")

	if !OTPEqual("482910", digest) {
		t.Fatal("matching code must compare equal")
	}
	if OTPEqual("482911", digest) {
		t.Fatal("differing code must not compare equal")
	}
	if OTPEqual("", digest) {
		t.Fatal("empty code must not compare equal")
	}
}

func TestIsDigits(t *testing.T) {
	cases := map[string]bool{
		"123456":  true,
		"0":       true,
		"":        false,
		"12a456":  false,
		"12 456":  false,
		"１２３４５６":  false,
		"-123456": false,
	}
	for input, want := range cases {
		if got := IsDigits(input); got != want {
			t.Errorf("IsDigits(%q) = %v, want %v", input, got, want)
		}
	}
}
