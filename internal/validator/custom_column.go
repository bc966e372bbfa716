package validator // import "github.com/Xunop/e-oasis-meta/internal/validator"

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/Xunop/e-oasis-meta/internal/meta"
)

// ValidateCustomColumnCreateRequest checks a new custom column against the
// fields the library already has.
func ValidateCustomColumnCreateRequest(fields *meta.Fields, col *meta.CustomColumn) error {
	if col == nil {
		return errors.New("custom column is nil")
	}
	if col.Label == "" {
		return errors.New("label is empty")
	}
	if err := meta.ValidateLabel(col.Label); err != nil {
		return err
	}
	if _, ok := fields.Get("#" + col.Label); ok {
		return errors.Errorf("custom column %q already exists", col.Label)
	}
	if strings.TrimSpace(col.Name) == "" {
		return errors.New("name is empty")
	}
	if !col.Datatype.Valid() {
		return errors.Errorf("unknown datatype %q", col.Datatype)
	}
	if col.IsMultiple && col.Datatype != meta.Text {
		return errors.Errorf("%s columns cannot hold multiple values", col.Datatype)
	}
	if col.Datatype == meta.Series {
		if _, ok := fields.Get("#" + col.Label + "_index"); ok {
			return errors.Errorf("custom column %q already exists", col.Label+"_index")
		}
	}
	return validateDisplay(col.Datatype, col.Display)
}

func validateDisplay(dt meta.Datatype, d meta.Display) error {
	switch dt {
	case meta.Enumeration:
		if len(d.EnumValues) == 0 {
			return errors.New("enumeration has no values")
		}
		seen := make(map[string]bool, len(d.EnumValues))
		for _, v := range d.EnumValues {
			if strings.TrimSpace(v) == "" {
				return errors.New("enumeration values cannot be empty")
			}
			if seen[v] {
				return errors.Errorf("duplicate enumeration value %q", v)
			}
			seen[v] = true
		}
	case meta.Composite:
		if strings.TrimSpace(d.CompositeTemplate) == "" {
			return errors.New("composite template is empty")
		}
	}
	return nil
}
