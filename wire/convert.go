package wire

import "fmt"

// Conversion helpers used by generated bindings to turn decoded message
// values into their declared Go types. Leaves are plain assertions;
// containers compose element converters so nested generics nest cleanly.

// As asserts a non-nullable leaf value.
func As[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("wire: value is %T, want %T", v, zero)
	}
	return t, nil
}

// AsNullable asserts a nullable leaf value, mapping null to a nil
// pointer.
func AsNullable[T any](v any) (*T, error) {
	if v == nil {
		return nil, nil
	}
	t, err := As[T](v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ConvertList converts a decoded list using elem for each element.
func ConvertList[T any](v any, elem func(any) (T, error)) ([]T, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("wire: value is %T, want a list", v)
	}
	out := make([]T, len(list))
	for i, e := range list {
		t, err := elem(e)
		if err != nil {
			return nil, fmt.Errorf("wire: list element %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// ConvertMap converts a decoded map using key and val for each entry.
func ConvertMap[K comparable, V any](v any, key func(any) (K, error), val func(any) (V, error)) (map[K]V, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("wire: value is %T, want a map", v)
	}
	out := make(map[K]V, len(m))
	for k, e := range m {
		ck, err := key(k)
		if err != nil {
			return nil, fmt.Errorf("wire: map key: %w", err)
		}
		cv, err := val(e)
		if err != nil {
			return nil, fmt.Errorf("wire: map value for %v: %w", ck, err)
		}
		out[ck] = cv
	}
	return out, nil
}
