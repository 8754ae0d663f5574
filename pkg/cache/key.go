package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

var timeType = reflect.TypeOf(time.Time{})

// CompositeKey is an ordered tuple compared structurally. Parts are encoded
// into a canonical form: slices and arrays element-wise, maps by sorted key,
// pointers by their target, times by instant and integers by value
// regardless of width. Two keys built from distinct but equal collections
// are therefore equal and hash equal.
type CompositeKey struct {
	enc  string
	hash uint64
}

// NewKey builds a composite key from parts.
func NewKey(parts ...interface{}) (CompositeKey, error) {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := encode(&sb, reflect.ValueOf(p), 0); err != nil {
			return CompositeKey{}, fmt.Errorf("cache key part %d: %w", i, err)
		}
	}
	sb.WriteByte(')')

	enc := sb.String()
	return CompositeKey{enc: enc, hash: xxhash.Sum64String(enc)}, nil
}

// MustKey is NewKey that panics on error.
func MustKey(parts ...interface{}) CompositeKey {
	k, err := NewKey(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

// Equal reports structural equality.
func (k CompositeKey) Equal(other CompositeKey) bool {
	return k.hash == other.hash && k.enc == other.enc
}

// Hash returns the 64-bit hash of the key.
func (k CompositeKey) Hash() uint64 { return k.hash }

// String returns the canonical encoding.
func (k CompositeKey) String() string { return k.enc }

const maxDepth = 32

func encode(sb *strings.Builder, v reflect.Value, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("value nested deeper than %d levels", maxDepth)
	}
	if !v.IsValid() {
		sb.WriteByte('n')
		return nil
	}

	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		sb.WriteByte('t')
		sb.WriteString(strconv.FormatInt(t.Unix(), 10))
		sb.WriteByte('.')
		sb.WriteString(strconv.Itoa(t.Nanosecond()))
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			sb.WriteByte('n')
			return nil
		}
		return encode(sb, v.Elem(), depth+1)
	case reflect.Bool:
		if v.Bool() {
			sb.WriteByte('T')
		} else {
			sb.WriteByte('F')
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteByte('i')
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sb.WriteByte('i')
		sb.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		sb.WriteByte('f')
		sb.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.String:
		return leaf(sb, 's', v.String())
	case reflect.Slice:
		if v.IsNil() {
			sb.WriteByte('n')
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return leaf(sb, 'b', v.Bytes())
		}
		return encodeList(sb, v, depth)
	case reflect.Array:
		return encodeList(sb, v, depth)
	case reflect.Map:
		return encodeMap(sb, v, depth)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		fmt.Fprintf(sb, "p%s@%x", v.Type(), v.Pointer())
	default:
		// structs and anything else: type-qualified JSON
		sb.WriteByte('j')
		sb.WriteString(v.Type().String())
		return leaf(sb, ':', v.Interface())
	}
	return nil
}

func leaf(sb *strings.Builder, tag byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sb.WriteByte(tag)
	sb.Write(data)
	return nil
}

func encodeList(sb *strings.Builder, v reflect.Value, depth int) error {
	sb.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := encode(sb, v.Index(i), depth+1); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func encodeMap(sb *strings.Builder, v reflect.Value, depth int) error {
	if v.IsNil() {
		sb.WriteByte('n')
		return nil
	}

	type pair struct{ k, v string }
	pairs := make([]pair, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		var kb, vb strings.Builder
		if err := encode(&kb, iter.Key(), depth+1); err != nil {
			return err
		}
		if err := encode(&vb, iter.Value(), depth+1); err != nil {
			return err
		}
		pairs = append(pairs, pair{kb.String(), vb.String()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	sb.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.k)
		sb.WriteByte(':')
		sb.WriteString(p.v)
	}
	sb.WriteByte('}')
	return nil
}
