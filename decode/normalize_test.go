package decode

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Foo Bar!", "user_id", "  weird--Name  ", "ALLCAPS", "already_normal", "___", ""}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize(%q) = %q, but Normalize(%q) = %q (not idempotent)", in, once, once, twice)
		}
	}
}

func TestNormalizeCollapsesAndLowercases(t *testing.T) {
	cases := map[string]string{
		"Foo Bar":     "foo_bar",
		"user__id":    "user_id",
		"CamelCase":   "camelcase",
		"trailing -":  "trailing",
		"a.b.c":       "a_b_c",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
