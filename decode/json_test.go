package decode

import "testing"

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDecodeJSONLenientIgnoresExtraFields(t *testing.T) {
	cell := `{"name":"gizmo","count":3,"extra":"ignored"}`
	var w widget
	if err := DecodeJSON(&cell, &w, false); err != nil {
		t.Fatalf("lenient decode: %v", err)
	}
	if w.Name != "gizmo" || w.Count != 3 {
		t.Errorf("got %+v", w)
	}
}

func TestDecodeJSONStrictRejectsExtraFields(t *testing.T) {
	cell := `{"name":"gizmo","count":3,"extra":"unexpected"}`
	var w widget
	if err := DecodeJSON(&cell, &w, true); err == nil {
		t.Error("expected strict decode to reject an unknown field")
	}
}

func TestDecodeJSONNullCellIsError(t *testing.T) {
	var w widget
	if err := DecodeJSON(nil, &w, false); err == nil {
		t.Error("expected decoding a null cell as JSON to error")
	}
}

func TestEncodeJSONRoundTrip(t *testing.T) {
	w := widget{Name: "sprocket", Count: 5}
	text, err := EncodeJSON(w)
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	var back widget
	if err := DecodeJSON(&text, &back, true); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if back != w {
		t.Errorf("round trip mismatch: got %+v, want %+v", back, w)
	}
}
