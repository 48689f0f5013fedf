// Package wire implements the runtime half of the loom message contract:
// the binary codec, the channel messenger, the reply envelope, and the
// proxy instance table. Generated Go bindings are thin layers over this
// package; bindings for other languages implement the same contract.
package wire

import (
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec tags 0..127 are owned by the standard encoding layer; custom
// classes are assigned tags from 128 up, one codec per api.
const (
	MinCustomTag uint64 = 128
	MaxCustomTag uint64 = 254
)

// CBOR encoding is canonical so that both sides of the barrier produce
// byte-identical output for equal values.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[any]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// CustomType describes one codec-tagged class. Encode recognizes values of
// the class and returns the positional field list; Decode rebuilds an
// instance from that list.
type CustomType struct {
	Tag    uint64
	Encode func(value any) ([]any, bool)
	Decode func(fields []any) (any, error)
}

// MessageCodec encodes and decodes message values. The zero set of custom
// types gives the standard codec; generated code extends it with one
// CustomType per codec-tagged class of its api.
type MessageCodec struct {
	types []CustomType
	byTag map[uint64]*CustomType
}

// NewMessageCodec builds a codec over the given custom types. Tag
// assignments come from the generator and are validated at build time, so
// an out-of-range or duplicate tag here is a programming error and panics.
func NewMessageCodec(types ...CustomType) *MessageCodec {
	c := &MessageCodec{
		types: types,
		byTag: make(map[uint64]*CustomType, len(types)),
	}
	for i := range types {
		ct := &types[i]
		if ct.Tag < MinCustomTag || ct.Tag > MaxCustomTag {
			panic(fmt.Sprintf("wire: custom tag %d outside [%d, %d]", ct.Tag, MinCustomTag, MaxCustomTag))
		}
		if _, dup := c.byTag[ct.Tag]; dup {
			panic(fmt.Sprintf("wire: duplicate custom tag %d", ct.Tag))
		}
		c.byTag[ct.Tag] = ct
	}
	return c
}

// EncodeMessage encodes a single message value.
func (c *MessageCodec) EncodeMessage(v any) ([]byte, error) {
	prepared, err := c.prepare(v)
	if err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return data, nil
}

// DecodeMessage decodes a single message value. Integers come back as
// int64, lists as []any, and maps as map[any]any; codec-tagged classes
// come back as the instances their CustomType.Decode builds.
func (c *MessageCodec) DecodeMessage(data []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	return c.restore(v)
}

// prepare rewrites v into CBOR-encodable form: custom classes become
// tagged field lists, named integer types (enums) collapse to int64, and
// containers are walked recursively.
func (c *MessageCodec) prepare(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	for i := range c.types {
		ct := &c.types[i]
		if fields, ok := ct.Encode(v); ok {
			prepared := make([]any, len(fields))
			for j, f := range fields {
				p, err := c.prepare(f)
				if err != nil {
					return nil, err
				}
				prepared[j] = p
			}
			return cbor.Tag{Number: ct.Tag, Content: prepared}, nil
		}
	}

	switch x := v.(type) {
	case bool, int64, float64, string, []byte:
		return x, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("wire: unsigned value %d overflows int64", u)
		}
		return int64(u), nil

	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil

	case reflect.String:
		return rv.String(), nil

	case reflect.Bool:
		return rv.Bool(), nil

	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return b, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			p, err := c.prepare(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil

	case reflect.Map:
		out := make(map[any]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := c.prepare(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			val, err := c.prepare(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil

	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return c.prepare(rv.Elem().Interface())

	default:
		return nil, fmt.Errorf("wire: cannot encode value of type %T", v)
	}
}

// restore rewrites decoded CBOR back into contract values, rebuilding
// codec-tagged classes along the way.
func (c *MessageCodec) restore(v any) (any, error) {
	switch x := v.(type) {
	case cbor.Tag:
		ct, ok := c.byTag[x.Number]
		if !ok {
			return nil, fmt.Errorf("wire: unknown type tag %d", x.Number)
		}
		content, err := c.restore(x.Content)
		if err != nil {
			return nil, err
		}
		fields, ok := content.([]any)
		if !ok {
			return nil, fmt.Errorf("wire: tag %d content is %T, want a field list", x.Number, content)
		}
		return ct.Decode(fields)

	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			r, err := c.restore(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	case map[any]any:
		out := make(map[any]any, len(x))
		for k, e := range x {
			rk, err := c.restore(k)
			if err != nil {
				return nil, err
			}
			rv, err := c.restore(e)
			if err != nil {
				return nil, err
			}
			out[rk] = rv
		}
		return out, nil

	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("wire: value %d overflows int64", x)
		}
		return int64(x), nil

	case float32:
		return float64(x), nil

	default:
		return v, nil
	}
}
