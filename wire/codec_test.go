package wire

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

// pairData stands in for a generated codec-tagged class with two
// nullable integer fields.
type pairData struct {
	A *int64
	B *int64
}

func pairCodec(tb testing.TB) *MessageCodec {
	tb.Helper()
	return NewMessageCodec(CustomType{
		Tag: 128,
		Encode: func(v any) ([]any, bool) {
			p, ok := v.(*pairData)
			if !ok {
				return nil, false
			}
			return []any{p.A, p.B}, true
		},
		Decode: func(fields []any) (any, error) {
			if len(fields) != 2 {
				return nil, fmt.Errorf("pairData: want 2 fields, got %d", len(fields))
			}
			p := &pairData{}
			if fields[0] != nil {
				n := fields[0].(int64)
				p.A = &n
			}
			if fields[1] != nil {
				n := fields[1].(int64)
				p.B = &n
			}
			return p, nil
		},
	})
}

func roundTrip(t *testing.T, c *MessageCodec, v any) any {
	t.Helper()
	data, err := c.EncodeMessage(v)
	if err != nil {
		t.Fatalf("EncodeMessage(%#v): %v", v, err)
	}
	out, err := c.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	return out
}

func TestCodec_StandardValues(t *testing.T) {
	c := NewMessageCodec()
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", int64(41), int64(41)},
		{"negative int", int64(-7), int64(-7)},
		{"large int", int64(math.MaxInt64), int64(math.MaxInt64)},
		{"double", 2.5, 2.5},
		{"string", "hello", "hello"},
		{"bytes", []byte{0, 1, 2, 255}, []byte{0, 1, 2, 255}},
		{"list", []any{int64(1), "two", nil}, []any{int64(1), "two", nil}},
		{
			"map",
			map[any]any{"a": int64(1), int64(2): "b"},
			map[any]any{"a": int64(1), int64(2): "b"},
		},
		{"nested list", []any{[]any{int64(1)}, []any{}}, []any{[]any{int64(1)}, []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, c, tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("round trip = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCodec_NormalizesIntegerWidths(t *testing.T) {
	c := NewMessageCodec()
	for _, v := range []any{int(3), int32(3), uint8(3)} {
		if got := roundTrip(t, c, v); got != int64(3) {
			t.Errorf("round trip of %T(3) = %#v, want int64(3)", v, got)
		}
	}
}

func TestCodec_NamedIntegerType(t *testing.T) {
	// Enums travel as their bare ordinal.
	type color int64
	c := NewMessageCodec()
	if got := roundTrip(t, c, color(2)); got != int64(2) {
		t.Errorf("round trip = %#v, want int64(2)", got)
	}
}

func TestCodec_TypedContainers(t *testing.T) {
	c := NewMessageCodec()
	got := roundTrip(t, c, []string{"a", "b"})
	want := []any{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("slice round trip = %#v, want %#v", got, want)
	}

	got = roundTrip(t, c, map[string]int64{"n": 9})
	wantMap := map[any]any{"n": int64(9)}
	if !reflect.DeepEqual(got, wantMap) {
		t.Errorf("map round trip = %#v, want %#v", got, wantMap)
	}
}

func TestCodec_CustomClass(t *testing.T) {
	c := pairCodec(t)
	five := int64(5)
	got := roundTrip(t, c, &pairData{A: nil, B: &five})
	p, ok := got.(*pairData)
	if !ok {
		t.Fatalf("round trip = %T, want *pairData", got)
	}
	if p.A != nil {
		t.Errorf("A = %v, want nil", *p.A)
	}
	if p.B == nil || *p.B != 5 {
		t.Errorf("B = %v, want 5", p.B)
	}
}

func TestCodec_CustomClassInsideContainers(t *testing.T) {
	c := pairCodec(t)
	one := int64(1)
	got := roundTrip(t, c, []any{&pairData{A: &one}, nil})
	list, ok := got.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("round trip = %#v, want a 2-element list", got)
	}
	p, ok := list[0].(*pairData)
	if !ok || p.A == nil || *p.A != 1 {
		t.Errorf("list[0] = %#v, want pairData with A=1", list[0])
	}
	if list[1] != nil {
		t.Errorf("list[1] = %#v, want nil", list[1])
	}
}

func TestCodec_UnknownTag(t *testing.T) {
	// A codec without the custom type must reject its tag.
	data, err := pairCodec(t).EncodeMessage(&pairData{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewMessageCodec().DecodeMessage(data); err == nil {
		t.Error("decoding an unregistered tag succeeded, want error")
	}
}

func TestCodec_UnencodableValue(t *testing.T) {
	c := NewMessageCodec()
	if _, err := c.EncodeMessage(struct{ X int }{1}); err == nil {
		t.Error("encoding an unregistered struct succeeded, want error")
	}
}

func TestNewMessageCodec_RejectsBadTags(t *testing.T) {
	ct := func(tag uint64) CustomType {
		return CustomType{
			Tag:    tag,
			Encode: func(any) ([]any, bool) { return nil, false },
			Decode: func([]any) (any, error) { return nil, nil },
		}
	}
	for _, tags := range [][]uint64{{127}, {255}, {128, 128}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewMessageCodec(tags %v) did not panic", tags)
				}
			}()
			var types []CustomType
			for _, tag := range tags {
				types = append(types, ct(tag))
			}
			NewMessageCodec(types...)
		}()
	}
}

func TestCodec_CanonicalOutput(t *testing.T) {
	c := NewMessageCodec()
	v := map[any]any{"b": int64(2), "a": int64(1), int64(3): "x"}
	first, err := c.EncodeMessage(v)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		again, err := c.EncodeMessage(v)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("encoding %d differs from the first", i)
		}
	}
}
