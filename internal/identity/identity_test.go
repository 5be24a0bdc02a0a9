package identity

import "testing"

func TestNormalizeAliasFolding(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"A.B+tag@gmail.com", "ab@gmail.com"},
		{"  First.Last@GMAIL.com ", "firstlast@gmail.com"},
		{"user+lists+more@googlemail.com", "user@googlemail.com"},
		{"dots.kept@example.com", "dots.kept@example.com"},
		{"Plus+kept@example.org", "plus+kept@example.org"},
		{"UPPER@Example.COM", "upper@example.com"},
		{"not-an-address", "not-an-address"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"A.B+tag@gmail.com",
		"Person@Example.com",
		"weird..name+x+y@googlemail.com",
		"plain@fastmail.com",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestExtractAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Jane Doe <jane@example.com>", "jane@example.com"},
		{"jane@example.com", "jane@example.com"},
		{`"Doe, Jane" <jane@example.com>`, "jane@example.com"},
		{"Broken Name <jane@example.com", "Broken Name <jane@example.com"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := ExtractAddress(tc.in); got != tc.want {
			t.Errorf("ExtractAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractAllAddresses(t *testing.T) {
	got := ExtractAllAddresses(
		"Jane <jane@example.com>, bob@example.com, \"C, D\" <cd@example.com>",
	)
	want := []string{"jane@example.com", "bob@example.com", "cd@example.com"}

	if len(got) != len(want) {
		t.Fatalf("got %d addresses, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("address %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAliasSet(t *testing.T) {
	aliases := NewAliasSet("Me@Gmail.com", "me.too+x@gmail.com")

	if !aliases.Contains("m.e+anything@gmail.com") {
		t.Error("expected folded gmail alias to match")
	}
	if !aliases.Contains("metoo@gmail.com") {
		t.Error("expected dot-stripped alias to match")
	}
	if aliases.Contains("someone-else@gmail.com") {
		t.Error("unexpected alias match")
	}
}
