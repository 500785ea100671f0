package decode

import "testing"

type person struct {
	ID    int64
	Name  string
	Email *string
}

func TestDecodeRowNamedMatching(t *testing.T) {
	columns := []string{"email", "name", "id"}
	email := "a@example.com"
	row := []*string{&email, ptrStr("Ada"), ptrStr("7")}

	var p person
	if err := DecodeRow(columns, row, &p); err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if p.ID != 7 || p.Name != "Ada" || p.Email == nil || *p.Email != email {
		t.Errorf("got %+v", p)
	}
}

func TestDecodeRowPositionalFallback(t *testing.T) {
	// Columns don't match the struct's field names at all, so DecodeRow
	// must fall back to matching by order.
	columns := []string{"c1", "c2", "c3"}
	row := []*string{ptrStr("7"), ptrStr("Grace"), nil}

	var p person
	if err := DecodeRow(columns, row, &p); err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if p.ID != 7 || p.Name != "Grace" || p.Email != nil {
		t.Errorf("got %+v", p)
	}
}

func TestDecodeRowNullIntoNonPointerIsError(t *testing.T) {
	columns := []string{"id", "name", "email"}
	row := []*string{nil, ptrStr("x"), nil}

	var p person
	if err := DecodeRow(columns, row, &p); err == nil {
		t.Error("expected a null cell into a non-pointer field to error")
	}
}

func TestDecodeRowsMapsEveryRow(t *testing.T) {
	columns := []string{"id", "name", "email"}
	rows := [][]*string{
		{ptrStr("1"), ptrStr("Ada"), nil},
		{ptrStr("2"), ptrStr("Grace"), nil},
	}

	var people []person
	if err := DecodeRows(columns, rows, &people); err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	if len(people) != 2 || people[0].Name != "Ada" || people[1].Name != "Grace" {
		t.Errorf("got %+v", people)
	}
}

func ptrStr(s string) *string { return &s }
