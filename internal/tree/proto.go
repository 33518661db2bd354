package tree

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToProto converts a tree into a protobuf Value. Object member order is not
// kept since protobuf maps are unordered.
func ToProto(v Value) (*structpb.Value, error) {
	switch v.kind {
	case Null:
		return structpb.NewNullValue(), nil
	case Bool:
		return structpb.NewBoolValue(v.b), nil
	case Number:
		f, err := v.num.Float64()
		if err != nil {
			return nil, fmt.Errorf("tree: number %q: %w", v.num, err)
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("tree: number %q out of range", v.num)
		}
		return structpb.NewNumberValue(f), nil
	case String:
		return structpb.NewStringValue(v.str), nil
	case Object:
		fields := make(map[string]*structpb.Value, len(v.members))
		for _, m := range v.members {
			pv, err := ToProto(m.Value)
			if err != nil {
				return nil, err
			}
			fields[m.Key] = pv
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	case Array:
		vals := make([]*structpb.Value, 0, len(v.items))
		for _, it := range v.items {
			pv, err := ToProto(it)
			if err != nil {
				return nil, err
			}
			vals = append(vals, pv)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: vals}), nil
	}
	return nil, fmt.Errorf("tree: unknown kind %d", v.kind)
}
