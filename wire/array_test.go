package wire

import "testing"

func ptr(s string) *string { return &s }

func TestEncodeDecodeArrayRoundTrip(t *testing.T) {
	elems := []*string{ptr("hello"), nil, ptr("has, comma"), ptr("NULL"), ptr("")}
	literal := EncodeArray(elems)

	got, err := DecodeArray(literal)
	if err != nil {
		t.Fatalf("DecodeArray(%q): %v", literal, err)
	}
	if len(got) != len(elems) {
		t.Fatalf("got %d elements, want %d", len(got), len(elems))
	}
	for i := range elems {
		switch {
		case elems[i] == nil && got[i] != nil:
			t.Errorf("element %d: want nil, got %q", i, *got[i])
		case elems[i] != nil && got[i] == nil:
			t.Errorf("element %d: want %q, got nil", i, *elems[i])
		case elems[i] != nil && *elems[i] != *got[i]:
			t.Errorf("element %d: want %q, got %q", i, *elems[i], *got[i])
		}
	}
}

func TestDecodeArrayEmpty(t *testing.T) {
	got, err := DecodeArray("{}")
	if err != nil {
		t.Fatalf("DecodeArray(\"{}\"): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected 0 elements, got %d", len(got))
	}
}

func TestDecodeArrayMalformed(t *testing.T) {
	if _, err := DecodeArray("not an array"); err == nil {
		t.Error("expected an error for a malformed literal")
	}
}

func TestEncodeArrayQuotesSpecialChars(t *testing.T) {
	literal := EncodeArray([]*string{ptr(`back\slash`), ptr(`quo"te`)})
	back, err := DecodeArray(literal)
	if err != nil {
		t.Fatalf("DecodeArray(%q): %v", literal, err)
	}
	if *back[0] != `back\slash` || *back[1] != `quo"te` {
		t.Errorf("round trip mismatch: %q, %q", *back[0], *back[1])
	}
}
