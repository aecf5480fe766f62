package qdrant

import (
	"fmt"
	"math"
	"reflect"

	pb "github.com/qdrant/go-client/qdrant"
)

func toPayload(meta map[string]any) (map[string]*pb.Value, error) {
	out := make(map[string]*pb.Value, len(meta)+1)
	for k, v := range meta {
		pv, err := toValue(v, 0)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = pv
	}
	return out, nil
}

const maxPayloadDepth = 32

func toValue(v any, depth int) (*pb.Value, error) {
	if depth > maxPayloadDepth {
		return nil, fmt.Errorf("payload nested deeper than %d levels", maxPayloadDepth)
	}

	switch x := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}, nil
	case string:
		return stringValue(x), nil
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}, nil
	case int:
		return intValue(int64(x)), nil
	case int32:
		return intValue(int64(x)), nil
	case int64:
		return intValue(x), nil
	case uint32:
		return intValue(int64(x)), nil
	case float32:
		return doubleValue(float64(x)), nil
	case float64:
		return doubleValue(x), nil
	case map[string]any:
		fields := make(map[string]*pb.Value, len(x))
		for k, e := range x {
			pv, err := toValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			fields[k] = pv
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}, nil
	case []any:
		return listValue(len(x), func(i int) any { return x[i] }, depth)
	case []string:
		return listValue(len(x), func(i int) any { return x[i] }, depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intValue(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return doubleValue(float64(u)), nil
		}
		return intValue(int64(u)), nil
	case reflect.Slice, reflect.Array:
		return listValue(rv.Len(), func(i int) any { return rv.Index(i).Interface() }, depth)
	}
	return stringValue(fmt.Sprint(v)), nil
}

func listValue(n int, at func(int) any, depth int) (*pb.Value, error) {
	values := make([]*pb.Value, n)
	for i := range values {
		pv, err := toValue(at(i), depth+1)
		if err != nil {
			return nil, err
		}
		values[i] = pv
	}
	return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(i int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: i}}
}

func doubleValue(f float64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_StructValue:
		return fromPayload(k.StructValue.GetFields())
	case *pb.Value_ListValue:
		values := k.ListValue.GetValues()
		out := make([]any, len(values))
		for i, e := range values {
			out[i] = fromValue(e)
		}
		return out
	default:
		return nil
	}
}
