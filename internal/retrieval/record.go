package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one key/value pair of a record.
type Field struct {
	Key   string
	Value Value
}

// Record is an ordered mapping from field name to value. Keys keep the order
// in which they first appear in the source document.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{index: make(map[string]int)}
}

// Set stores v under key. An existing key keeps its position.
func (r *Record) Set(key string, v Value) {
	if i, ok := r.index[key]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, Field{Key: key, Value: v})
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	i, ok := r.index[key]
	if !ok {
		return Value{}, false
	}
	return r.fields[i].Value, true
}

// Keys returns the field names in order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the fields in order.
func (r *Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.fields)
}

// MarshalJSON renders the record as an object with keys in order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeRecord parses a JSON object into a record, keeping key order.
// Nested objects are flattened into dotted keys. Arrays are kept as their
// compact JSON text. A missing or null document, as returned for indices
// that do not store _source, decodes to an empty record.
func DecodeRecord(data []byte) (*Record, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewRecord(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode document: expected object, got %v", tok)
	}

	rec := NewRecord()
	if err := decodeObject(dec, "", rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return rec, nil
}

// decodeObject consumes the members of an object whose '{' was already read.
func decodeObject(dec *json.Decoder, prefix string, rec *Record) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if err := decodeValue(dec, key, rec); err != nil {
			return err
		}
	}
	_, err := dec.Token()
	return err
}

func decodeValue(dec *json.Decoder, key string, rec *Record) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		if v == '{' {
			return decodeObject(dec, key, rec)
		}
		items := []any{}
		for dec.More() {
			var item any
			if err := dec.Decode(&item); err != nil {
				return err
			}
			items = append(items, item)
		}
		if _, err := dec.Token(); err != nil {
			return err
		}
		text, err := json.Marshal(items)
		if err != nil {
			return err
		}
		rec.Set(key, StringValue(string(text)))
	case string:
		rec.Set(key, StringValue(v))
	case json.Number:
		rec.Set(key, NumberValue(v))
	case bool:
		rec.Set(key, BoolValue(v))
	case nil:
		rec.Set(key, NullValue())
	}
	return nil
}
