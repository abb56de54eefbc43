package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// DecodeOptions populates the struct pointed to by target from raw option
// values. Fields are matched by their `option:"name"` tag; values are
// converted to the field's type the way HCL converts attribute values (a
// number literal may fill a string, a tuple a slice). Options without a
// matching field are an error. Fields without a value keep what they hold.
func DecodeOptions(values map[string]cty.Value, target any) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() || ptr.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("options target must be a non-nil pointer to a struct, got %T", target)
	}
	structVal := ptr.Elem()
	structType := structVal.Type()

	fields := make(map[string]reflect.Value, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.Split(field.Tag.Get("option"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		fields[name] = structVal.Field(i)
	}

	var unknown []string
	for name := range values {
		if _, ok := fields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown option(s): %s", strings.Join(unknown, ", "))
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		val := values[name]
		if val.IsNull() {
			continue
		}
		if err := decodeValue(val, fields[name].Addr().Interface()); err != nil {
			return fmt.Errorf("option %q: %w", name, err)
		}
	}
	return nil
}

func decodeValue(val cty.Value, goVal any) error {
	if !val.IsWhollyKnown() {
		return fmt.Errorf("value is not known")
	}
	ty, err := gocty.ImpliedType(reflect.ValueOf(goVal).Elem().Interface())
	if err != nil {
		return gocty.FromCtyValue(val, goVal)
	}
	converted, err := convert.Convert(val, ty)
	if err != nil {
		return fmt.Errorf("cannot convert %s to %s: %w", val.Type().FriendlyName(), ty.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, goVal)
}
