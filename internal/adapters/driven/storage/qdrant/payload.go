package qdrant

import (
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage"
	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// toPayload stores text, source and fingerprint at the top level and the
// chunk metadata as a nested object.
func toPayload(r domain.IndexedRecord) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		storage.PayloadText:        qdrant.NewValueString(r.Text),
		storage.PayloadSource:      qdrant.NewValueString(r.Source),
		storage.PayloadFingerprint: qdrant.NewValueString(r.Fingerprint),
	}
	if len(r.Metadata) > 0 {
		fields := make(map[string]*qdrant.Value, len(r.Metadata))
		for k, v := range r.Metadata {
			fields[k] = toValue(v)
		}
		payload[storage.PayloadMetadata] = &qdrant.Value{
			Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}},
		}
	}
	return payload
}

func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case float32:
		return qdrant.NewValueDouble(float64(val))
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(fmt.Sprint(v))
	}
}

func fromPayload(payload map[string]*qdrant.Value) domain.IndexedRecord {
	r := domain.IndexedRecord{
		Text:        payload[storage.PayloadText].GetStringValue(),
		Source:      payload[storage.PayloadSource].GetStringValue(),
		Fingerprint: payload[storage.PayloadFingerprint].GetStringValue(),
		Metadata:    map[string]any{},
	}
	for k, v := range payload[storage.PayloadMetadata].GetStructValue().GetFields() {
		r.Metadata[k] = fromValue(v)
	}
	return r
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return int(kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

// toFilter builds a conjunction of keyword matches. Keys other than
// "source" address the nested metadata object.
func toFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		field := k
		if k != storage.PayloadSource {
			field = storage.PayloadMetadata + "." + k
		}
		conds = append(conds, qdrant.NewMatch(field, filter[k]))
	}
	return &qdrant.Filter{Must: conds}
}
