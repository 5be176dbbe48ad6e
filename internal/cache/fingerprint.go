package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var timeType = reflect.TypeOf(time.Time{})

// Fingerprint derives a stable cache key from the given parts.
// Every part is first reduced to a canonical form where maps become key-sorted
// pair lists, then msgpack encoded and hashed, so equal inputs always hash equally.
func Fingerprint(parts ...interface{}) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	for i, part := range parts {
		value, err := canonical(reflect.ValueOf(part))
		if err != nil {
			return "", fmt.Errorf("failed to encode fingerprint part %d: %w", i, err)
		}
		if err := enc.Encode(value); err != nil {
			return "", fmt.Errorf("failed to encode fingerprint part %d: %w", i, err)
		}
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])[:32], nil
}

// canonical rewrites v into plain slices and scalars with a fixed ordering:
// structs become [name, value, ...] in declaration order (exported fields only),
// maps become [key, value, ...] sorted by the formatted key.
func canonical(v reflect.Value) (interface{}, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return canonical(v.Elem())

	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface().(time.Time).UTC().UnixNano(), nil
		}
		t := v.Type()
		out := make([]interface{}, 0, 2*t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("msgpack") == "-" {
				continue
			}
			fv, err := canonical(v.Field(i))
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out = append(out, f.Name, fv)
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		type pair struct {
			key   string
			value interface{}
		}
		pairs := make([]pair, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			mv, err := canonical(iter.Value())
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair{key: fmt.Sprint(iter.Key().Interface()), value: mv})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
		out := make([]interface{}, 0, 2*len(pairs))
		for _, p := range pairs {
			out = append(out, p.key, p.value)
		}
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]interface{}, v.Len())
		for i := range out {
			ev, err := canonical(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil

	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	}
	return nil, fmt.Errorf("unsupported kind %s", v.Kind())
}
