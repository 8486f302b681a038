package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	timestampKey       = "$timestamp"
	serverTimestampKey = "$serverTimestamp"
)

var ErrUnsupportedValue = errors.New("unsupported field value")

// EncodeFields converts document fields into a Struct. time.Time values and
// the ServerTimestamp placeholder are represented as single-key tagged
// objects so they survive the round trip.
func EncodeFields(fields map[string]any) (*structpb.Struct, error) {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for k, v := range fields {
		pv, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out.Fields[k] = pv
	}
	return out, nil
}

// EncodeValue converts a single field value.
func EncodeValue(v any) (*structpb.Value, error) {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case string:
		return structpb.NewStringValue(x), nil
	case bool:
		return structpb.NewBoolValue(x), nil
	case float64:
		return structpb.NewNumberValue(x), nil
	case float32:
		return structpb.NewNumberValue(float64(x)), nil
	case int:
		return structpb.NewNumberValue(float64(x)), nil
	case int64:
		return structpb.NewNumberValue(float64(x)), nil
	case time.Time:
		return tagged(timestampKey, structpb.NewStringValue(x.UTC().Format(time.RFC3339Nano))), nil
	case serverTimestamp:
		return tagged(serverTimestampKey, structpb.NewBoolValue(true)), nil
	case []any:
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(x))}
		for i, item := range x {
			pv, err := EncodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			list.Values = append(list.Values, pv)
		}
		return structpb.NewListValue(list), nil
	case map[string]any:
		s, err := EncodeFields(x)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(s), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func tagged(key string, v *structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{key: v}})
}

// DecodeFields is the inverse of EncodeFields. A nil Struct decodes to an
// empty map.
func DecodeFields(s *structpb.Struct) (map[string]any, error) {
	out := make(map[string]any, len(s.GetFields()))
	for k, v := range s.GetFields() {
		dv, err := DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

// DecodeValue converts a single Struct value back to its Go form.
func DecodeValue(v *structpb.Value) (any, error) {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_BoolValue:
		return k.BoolValue, nil
	case *structpb.Value_NumberValue:
		return k.NumberValue, nil
	case *structpb.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for i, item := range items {
			dv, err := DecodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, dv)
		}
		return out, nil
	case *structpb.Value_StructValue:
		return decodeStruct(k.StructValue)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, k)
	}
}

func decodeStruct(s *structpb.Struct) (any, error) {
	if f := s.GetFields(); len(f) == 1 {
		if ts, ok := f[timestampKey]; ok {
			t, err := time.Parse(time.RFC3339Nano, ts.GetStringValue())
			if err != nil {
				return nil, fmt.Errorf("bad timestamp: %w", err)
			}
			return t, nil
		}
		if _, ok := f[serverTimestampKey]; ok {
			return ServerTimestamp, nil
		}
	}
	return DecodeFields(s)
}

// MarshalJSON renders document fields as compact JSON using the tagged
// encoding. Keys are sorted, so equal fields give equal bytes.
func MarshalJSON(fields map[string]any) ([]byte, error) {
	s, err := EncodeFields(fields)
	if err != nil {
		return nil, err
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON parses JSON produced by MarshalJSON.
func UnmarshalJSON(b []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return DecodeFields(&s)
}

// EncodeDocuments converts documents into a Struct list of {id, fields}.
func EncodeDocuments(docs []Document) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(docs))}
	for _, d := range docs {
		fields, err := EncodeFields(d.Fields)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"id":     structpb.NewStringValue(d.ID),
				"fields": structpb.NewStructValue(fields),
			},
		}))
	}
	return list, nil
}

// DecodeDocuments is the inverse of EncodeDocuments. Order is preserved.
func DecodeDocuments(list *structpb.ListValue) ([]Document, error) {
	out := make([]Document, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("document %d: not an object", i)
		}
		fields, err := DecodeFields(s.GetFields()["fields"].GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, Document{ID: s.GetFields()["id"].GetStringValue(), Fields: fields})
	}
	return out, nil
}
