package decode

import "testing"

type status int

const (
	statusPending status = iota
	statusActive
	statusClosed
)

var statusMapping = NewEnumMapping(map[status]string{
	statusPending: "pending",
	statusActive:  "active",
	statusClosed:  "closed",
})

func TestEnumMappingDecode(t *testing.T) {
	got, err := statusMapping.Decode("active")
	if err != nil || got != statusActive {
		t.Errorf("Decode(\"active\") = %v, %v; want statusActive, nil", got, err)
	}
	if _, err := statusMapping.Decode("unknown"); err == nil {
		t.Error("expected an error for a string that isn't mapped and isn't an integer")
	}
}

func TestEnumMappingDecodeFallsBackToUnderlyingInteger(t *testing.T) {
	got, err := statusMapping.Decode("1")
	if err != nil || got != statusActive {
		t.Errorf("Decode(\"1\") = %v, %v; want statusActive, nil", got, err)
	}
	// An out-of-range integer still parses: the mapping doesn't validate
	// that every underlying value has a name, matching the source's
	// unchecked enum_from_token_impl fallback.
	got, err = statusMapping.Decode("99")
	if err != nil || got != status(99) {
		t.Errorf("Decode(\"99\") = %v, %v; want status(99), nil", got, err)
	}
}

func TestEnumMappingEncode(t *testing.T) {
	got, err := statusMapping.Encode(statusClosed)
	if err != nil || got != "closed" {
		t.Errorf("Encode(statusClosed) = %q, %v; want \"closed\", nil", got, err)
	}
}
