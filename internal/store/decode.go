package store

import (
	"encoding/json"
	"fmt"
	"reflect"

	pkgerrors "courier/pkg/errors"
	"courier/pkg/metrics"
	"courier/pkg/models"
)

// objectTypes maps a change-record object type name to the raw Go type it
// decodes into. Decoded values are always pointers.
var objectTypes = map[string]reflect.Type{
	ObjectMessage:           reflect.TypeOf(RawMessage{}),
	ObjectFileTransfer:      reflect.TypeOf(RawFileTransfer{}),
	ObjectTextChunk:         reflect.TypeOf(RawTextChunk{}),
	ObjectStatusChange:      reflect.TypeOf(RawStatusChange{}),
	ObjectReadReceipt:       reflect.TypeOf(RawReadReceipt{}),
	ObjectTapback:           reflect.TypeOf(RawTapback{}),
	ObjectStickerPlacement:  reflect.TypeOf(RawStickerPlacement{}),
	ObjectGroupAction:       reflect.TypeOf(RawGroupAction{}),
	ObjectParticipantChange: reflect.TypeOf(RawParticipantChange{}),
	ObjectPluginPayload:     reflect.TypeOf(RawPluginPayload{}),
	ObjectRichLink:          reflect.TypeOf(RawRichLink{}),
	ObjectChat:              reflect.TypeOf(RawChat{}),
	ObjectContact:           reflect.TypeOf(RawContact{}),
}

var objectNames = func() map[reflect.Type]string {
	names := make(map[reflect.Type]string, len(objectTypes))
	for name, t := range objectTypes {
		names[reflect.PtrTo(t)] = name
	}
	return names
}()

// DecodeObject turns a tagged wire object into its raw Go value.
func DecodeObject(obj models.RawObject) (interface{}, error) {
	t, ok := objectTypes[obj.Type]
	if !ok {
		return nil, pkgerrors.ErrUnknownVariant.WithDetail("message", fmt.Sprintf("unknown object type %q", obj.Type))
	}

	v := reflect.New(t)
	if err := json.Unmarshal(obj.Data, v.Interface()); err != nil {
		return nil, pkgerrors.ErrMalformedObject.WithCause(err).WithDetail("object_type", obj.Type)
	}
	return v.Interface(), nil
}

// SkipFunc is told about each object DecodeObjects leaves out.
type SkipFunc func(index int, obj models.RawObject, err error)

// DecodeObjects decodes every object it can. An object of an unknown type
// or with a malformed body is dropped and reported to skip (which may be
// nil); its siblings are kept in order.
func DecodeObjects(objs []models.RawObject, skip SkipFunc) []interface{} {
	out := make([]interface{}, 0, len(objs))
	for i, obj := range objs {
		v, err := DecodeObject(obj)
		if err != nil {
			metrics.IncClassification(obj.Type, "undecodable")
			if skip != nil {
				skip(i, obj, err)
			}
			continue
		}
		out = append(out, v)
	}
	return out
}

// EncodeObject is the inverse of DecodeObject.
func EncodeObject(v interface{}) (models.RawObject, error) {
	name, ok := objectNames[reflect.TypeOf(v)]
	if !ok {
		return models.RawObject{}, pkgerrors.ErrUnknownVariant.WithDetail("message", fmt.Sprintf("cannot encode %T", v))
	}

	data, err := json.Marshal(v)
	if err != nil {
		return models.RawObject{}, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return models.RawObject{Type: name, Data: data}, nil
}

func EncodeObjects(vs []interface{}) ([]models.RawObject, error) {
	out := make([]models.RawObject, 0, len(vs))
	for _, v := range vs {
		obj, err := EncodeObject(v)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
