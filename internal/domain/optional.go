package domain

import (
	"bytes"
	"encoding/json"
)

// Optional carries the three states of a partial-update field:
// absent (Set == false), explicit null (Set && Null) and a value.
//
// encoding/json calls UnmarshalJSON for both values and null, and never
// for a missing key, which is what makes the distinction observable.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Nil returns an Optional that was explicitly set to null.
func Nil[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// HasValue reports whether the field was provided with a non-null value.
func (o Optional[T]) HasValue() bool {
	return o.Set && !o.Null
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
