package validator

import (
	"testing"

	"github.com/Xunop/e-oasis-meta/internal/meta"
)

func TestValidateCustomColumnCreateRequest(t *testing.T) {
	fields := meta.Standard()
	existing := meta.CustomColumn{Num: 1, Label: "saga", Name: "Saga", Datatype: meta.Series, Normalized: true}
	for _, f := range existing.Fields() {
		fields.Add(f)
	}

	tests := []struct {
		name    string
		col     *meta.CustomColumn
		wantErr bool
	}{
		{"nil", nil, true},
		{"ok", &meta.CustomColumn{Label: "mood", Name: "Mood", Datatype: meta.Text, IsMultiple: true}, false},
		{"bad label", &meta.CustomColumn{Label: "My Col", Name: "x", Datatype: meta.Text}, true},
		{"taken", &meta.CustomColumn{Label: "saga", Name: "x", Datatype: meta.Text}, true},
		{"taken by index", &meta.CustomColumn{Label: "saga_index", Name: "x", Datatype: meta.Float}, true},
		{"no name", &meta.CustomColumn{Label: "pages", Datatype: meta.Int}, true},
		{"bad datatype", &meta.CustomColumn{Label: "pages", Name: "Pages", Datatype: "blob"}, true},
		{"multiple int", &meta.CustomColumn{Label: "pages", Name: "Pages", Datatype: meta.Int, IsMultiple: true}, true},
		{"empty enum", &meta.CustomColumn{Label: "shelf", Name: "Shelf", Datatype: meta.Enumeration}, true},
		{"duplicate enum", &meta.CustomColumn{Label: "shelf", Name: "Shelf", Datatype: meta.Enumeration,
			Display: meta.Display{EnumValues: []string{"a", "a"}}}, true},
		{"enum", &meta.CustomColumn{Label: "shelf", Name: "Shelf", Datatype: meta.Enumeration,
			Display: meta.Display{EnumValues: []string{"a", "b"}}}, false},
		{"composite without template", &meta.CustomColumn{Label: "c", Name: "C", Datatype: meta.Composite}, true},
	}
	for _, tt := range tests {
		err := ValidateCustomColumnCreateRequest(fields, tt.col)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
