package iio

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rjboer/GoADI/internal/logging"
)

// AttrSet reads and writes the attributes of one device, channel, debug or
// buffer namespace.
type AttrSet struct {
	ctx   *Context
	base  Ref
	files map[string]string
}

// Ref returns the reference of attribute name within the set.
func (a AttrSet) Ref(name string) Ref {
	r := a.base
	r.Name = name
	if f, ok := a.files[name]; ok {
		r.Filename = f
	}
	return r
}

// Attr reads a raw attribute value.
func (a AttrSet) Attr(ctx context.Context, name string) (string, error) {
	if a.ctx == nil {
		return "", errNoContext
	}
	ref := a.Ref(name)
	v, err := a.ctx.backend.ReadAttr(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", ref, err)
	}
	return v, nil
}

// SetAttr writes a raw attribute value.
func (a AttrSet) SetAttr(ctx context.Context, name, value string) error {
	if a.ctx == nil {
		return errNoContext
	}
	ref := a.Ref(name)
	a.ctx.logger.Debug("attr write", logging.F("ref", ref.String()), logging.F("value", value))
	if err := a.ctx.backend.WriteAttr(ctx, ref, value); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}

// AttrInt reads an integer attribute. Hex values with a 0x prefix are accepted.
func (a AttrSet) AttrInt(ctx context.Context, name string) (int64, error) {
	raw, err := a.Attr(ctx, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 0, 64)
	if err != nil {
		return 0, &ValueError{Attr: name, Raw: raw, Want: "int"}
	}
	return v, nil
}

// AttrFloat reads a floating point attribute.
func (a AttrSet) AttrFloat(ctx context.Context, name string) (float64, error) {
	raw, err := a.Attr(ctx, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &ValueError{Attr: name, Raw: raw, Want: "float"}
	}
	return v, nil
}

// AttrBool reads a boolean attribute.
func (a AttrSet) AttrBool(ctx context.Context, name string) (bool, error) {
	raw, err := a.Attr(ctx, name)
	if err != nil {
		return false, err
	}
	v, ok := ParseBool(raw)
	if !ok {
		return false, &ValueError{Attr: name, Raw: raw, Want: "bool"}
	}
	return v, nil
}

func (a AttrSet) SetAttrInt(ctx context.Context, name string, v int64) error {
	return a.SetAttr(ctx, name, strconv.FormatInt(v, 10))
}

func (a AttrSet) SetAttrFloat(ctx context.Context, name string, v float64) error {
	return a.SetAttr(ctx, name, FormatFloat(v))
}

func (a AttrSet) SetAttrBool(ctx context.Context, name string, v bool) error {
	return a.SetAttr(ctx, name, FormatBool(v))
}

// SetAttrValue formats v and writes it. Supported types are string, bool, the
// integer kinds and float32/float64.
func (a AttrSet) SetAttrValue(ctx context.Context, name string, v any) error {
	s, err := FormatValue(v)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	return a.SetAttr(ctx, name, s)
}

// AttrAuto reads an attribute and parses it as int, float or string.
func (a AttrSet) AttrAuto(ctx context.Context, name string) (Value, error) {
	raw, err := a.Attr(ctx, name)
	if err != nil {
		return Value{}, err
	}
	return ParseValue(raw), nil
}

// Available reads name+"_available" and parses it.
func (a AttrSet) Available(ctx context.Context, name string) (Available, error) {
	raw, err := a.Attr(ctx, name+"_available")
	if err != nil {
		return Available{}, err
	}
	return ParseAvailable(raw)
}

// ValueKind is the detected type of an attribute value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
)

// Value is an attribute value with its detected type.
type Value struct {
	Raw   string
	Kind  ValueKind
	Int   int64
	Float float64
}

func (v Value) String() string { return v.Raw }

// ParseValue detects int, then float, then falls back to string.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{Raw: s, Kind: KindInt, Int: i, Float: float64(i)}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Value{Raw: s, Kind: KindFloat, Float: f}
	}
	return Value{Raw: s, Kind: KindString}
}

// ParseBool accepts 1/0, true/false and Y/N in any case.
func ParseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "y":
		return true, true
	case "0", "false", "n":
		return false, true
	}
	return false, false
}

func FormatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// FormatFloat renders v without exponent, as sysfs parsers expect.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatValue renders a Go value as an attribute string.
func FormatValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", x), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return FormatFloat(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
}

// Range is a "[min step max]" attribute range.
type Range struct {
	Min, Step, Max float64
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Available is a parsed _available attribute: either a Range or a list.
type Available struct {
	Range *Range
	List  []string
}

// Has reports whether s is one of the listed values.
func (a Available) Has(s string) bool {
	for _, v := range a.List {
		if v == s {
			return true
		}
	}
	return false
}

// ParseAvailable parses "[min step max]" ranges and space separated lists.
func ParseAvailable(raw string) (Available, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		f := strings.Fields(strings.Trim(s, "[]"))
		if len(f) != 3 {
			return Available{}, &ValueError{Attr: "available", Raw: raw, Want: "[min step max]"}
		}
		var vals [3]float64
		for i, t := range f {
			v, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return Available{}, &ValueError{Attr: "available", Raw: raw, Want: "[min step max]"}
			}
			vals[i] = v
		}
		return Available{Range: &Range{Min: vals[0], Step: vals[1], Max: vals[2]}}, nil
	}
	return Available{List: strings.Fields(s)}, nil
}
