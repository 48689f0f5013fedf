package wire

import (
	"reflect"
	"testing"
)

func TestAs(t *testing.T) {
	if v, err := As[int64](int64(5)); err != nil || v != 5 {
		t.Errorf("As[int64] = %v, %v", v, err)
	}
	if _, err := As[string](int64(5)); err == nil {
		t.Error("As[string] of an int succeeded")
	}
}

func TestAsNullable(t *testing.T) {
	p, err := AsNullable[string](nil)
	if err != nil || p != nil {
		t.Errorf("AsNullable(nil) = %v, %v", p, err)
	}
	p, err = AsNullable[string]("x")
	if err != nil || p == nil || *p != "x" {
		t.Errorf("AsNullable(x) = %v, %v", p, err)
	}
}

func TestConvertList_Nested(t *testing.T) {
	in := []any{[]any{int64(1), int64(2)}, []any{}}
	got, err := ConvertList(in, func(v any) ([]int64, error) {
		return ConvertList(v, As[int64])
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int64{{1, 2}, {}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestConvertList_ElementError(t *testing.T) {
	if _, err := ConvertList([]any{int64(1), "x"}, As[int64]); err == nil {
		t.Error("mixed-type list converted without error")
	}
}

func TestConvertMap(t *testing.T) {
	in := map[any]any{"a": int64(1), "b": nil}
	got, err := ConvertMap(in, As[string], AsNullable[int64])
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["a"] == nil || *got["a"] != 1 || got["b"] != nil {
		t.Errorf("got %#v", got)
	}
}

func TestConvert_NullContainers(t *testing.T) {
	if got, err := ConvertList[int64](nil, As[int64]); err != nil || got != nil {
		t.Errorf("ConvertList(nil) = %v, %v", got, err)
	}
	if got, err := ConvertMap[string, int64](nil, As[string], As[int64]); err != nil || got != nil {
		t.Errorf("ConvertMap(nil) = %v, %v", got, err)
	}
}
