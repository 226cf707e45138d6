package refs

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// List is an ordered sequence of references. It decodes leniently from JSON
// and BSON because older documents sometimes hold the field as text.
type List []string

// UnmarshalJSON accepts null, a string (plain or JSON-array text) or an array.
func (l *List) UnmarshalJSON(b []byte) error {
	*l = List(Coerce(json.RawMessage(b)))
	return nil
}

// UnmarshalBSONValue accepts null/undefined, a string or an array; other
// element types are dropped.
func (l *List) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*l = List{}
	case bsontype.String:
		*l = List(coerceString(rv.StringValue()))
	case bsontype.Array:
		vals, err := rv.Array().Values()
		if err != nil {
			return fmt.Errorf("decode reference list: %w", err)
		}
		out := make(List, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.StringValueOK(); ok && s != "" {
				out = append(out, s)
			}
		}
		*l = out
	default:
		*l = List{}
	}
	return nil
}

// Field is a request field that remembers whether the client sent it.
// An explicit null counts as sent-and-empty; an omitted field stays unset.
type Field struct {
	Set    bool
	Values List
}

func (f *Field) UnmarshalJSON(b []byte) error {
	f.Set = true
	f.Values = List(Coerce(json.RawMessage(b)))
	return nil
}

// First returns the first value or "" (for single-valued fields).
func (f Field) First() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Supplied builds a Field as if the client had sent values.
func Supplied(values ...string) Field {
	return Field{Set: true, Values: List(nonEmpty(values))}
}
