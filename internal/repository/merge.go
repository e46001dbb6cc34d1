package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MergeFields overlays fields onto the top level of a JSON object document.
// Store implementations share it so partial writes behave the same
// everywhere.
func MergeFields(doc json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj, err := decodeObject(doc)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}

// AppendValues pushes values onto the array stored under field. Equal
// values are kept; an inbox may hold the same rumor twice. A missing or
// null field starts as an empty array.
func AppendValues(doc json.RawMessage, field string, values ...any) (json.RawMessage, error) {
	obj, arr, err := decodeArray(doc, field)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s value: %w", field, err)
		}
		arr = append(arr, raw)
	}
	return encodeArray(obj, field, arr)
}

// AppendUnique pushes value onto the array under field unless an element
// already carries the same value in its key property. It returns the doc
// unchanged and false in that case.
func AppendUnique(doc json.RawMessage, field, key string, value any) (json.RawMessage, bool, error) {
	obj, arr, err := decodeArray(doc, field)
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false, fmt.Errorf("marshal %s value: %w", field, err)
	}
	want, err := property(raw, key)
	if err != nil {
		return nil, false, fmt.Errorf("%s value: %w", field, err)
	}
	for _, item := range arr {
		have, err := property(item, key)
		if err == nil && bytes.Equal(have, want) {
			return doc, false, nil
		}
	}
	merged, err := encodeArray(obj, field, append(arr, raw))
	if err != nil {
		return nil, false, err
	}
	return merged, true, nil
}

func decodeArray(doc json.RawMessage, field string) (map[string]json.RawMessage, []json.RawMessage, error) {
	obj, err := decodeObject(doc)
	if err != nil {
		return nil, nil, err
	}
	var arr []json.RawMessage
	if cur, ok := obj[field]; ok && !bytes.Equal(bytes.TrimSpace(cur), []byte("null")) {
		if err := json.Unmarshal(cur, &arr); err != nil {
			return nil, nil, fmt.Errorf("field %s is not an array: %w", field, err)
		}
	}
	return obj, arr, nil
}

func encodeArray(obj map[string]json.RawMessage, field string, arr []json.RawMessage) (json.RawMessage, error) {
	if arr == nil {
		arr = []json.RawMessage{}
	}
	merged, err := json.Marshal(arr)
	if err != nil {
		return nil, err
	}
	obj[field] = merged
	return json.Marshal(obj)
}

func decodeObject(doc json.RawMessage) (map[string]json.RawMessage, error) {
	obj := make(map[string]json.RawMessage)
	if len(doc) == 0 {
		return obj, nil
	}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	return obj, nil
}

// property returns the compacted JSON of obj[key].
func property(obj json.RawMessage, key string) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil, fmt.Errorf("not an object: %w", err)
	}
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("missing %q", key)
	}
	var out bytes.Buffer
	if err := json.Compact(&out, v); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
