package utils

import "testing"

func TestNormalizeKey(t *testing.T) {
	cases := []struct{ in, want string }{
		{" txn-001 ", "TXN-001"},
		{"REF-1", "REF-1"},
		{"\tmixedCase99\n", "MIXEDCASE99"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeKey(tc.in); got != tc.want {
			t.Fatalf("NormalizeKey(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty("") != nil {
		t.Fatalf("empty string must map to nil")
	}
	if p := NilIfEmpty("x"); p == nil || *p != "x" {
		t.Fatalf("non-empty value lost")
	}
	if NilIfEmpty(0) != nil {
		t.Fatalf("zero int must map to nil")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order not preserved: %v", got)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"settlement@mmtel.com.mm", true},
		{"ops+recon@example.org", true},
		{"not-an-email", false},
		{"missing@tld", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsValidEmail(tc.in); got != tc.want {
			t.Fatalf("IsValidEmail(%q)=%t want %t", tc.in, got, tc.want)
		}
	}
}
