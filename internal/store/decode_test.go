package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "courier/pkg/errors"
	"courier/pkg/models"
)

func TestDecodeObject_EveryTypeRoundTrips(t *testing.T) {
	for name := range objectTypes {
		t.Run(name, func(t *testing.T) {
			v, err := DecodeObject(models.RawObject{Type: name, Data: json.RawMessage(`{}`)})
			require.NoError(t, err)

			obj, err := EncodeObject(v)
			require.NoError(t, err)
			assert.Equal(t, name, obj.Type)
		})
	}
}

func TestDecodeObject_Errors(t *testing.T) {
	_, err := DecodeObject(models.RawObject{Type: "unknown", Data: json.RawMessage(`{}`)})
	assert.Equal(t, pkgerrors.ErrUnknownVariant.Code, pkgerrors.Code(err))

	_, err = DecodeObject(models.RawObject{Type: ObjectTapback, Data: json.RawMessage(`[1,2]`)})
	assert.True(t, pkgerrors.IsMalformed(err))

	_, err = EncodeObject(RawTapback{})
	assert.Error(t, err, "values must be pointers")
}

func TestDecodeObjects_SkipsUndecodable(t *testing.T) {
	objs := []models.RawObject{
		{Type: ObjectTextChunk, Data: json.RawMessage(`{"message_guid":"m1","text":"a"}`)},
		{Type: "poll", Data: json.RawMessage(`{}`)},
		{Type: ObjectTapback, Data: json.RawMessage(`"oops"`)},
		{Type: ObjectFileTransfer, Data: json.RawMessage(`{"guid":"f1"}`)},
	}

	var skipped []int
	got := DecodeObjects(objs, func(i int, _ models.RawObject, err error) {
		assert.Error(t, err)
		skipped = append(skipped, i)
	})

	require.Len(t, got, 2)
	assert.IsType(t, &RawTextChunk{}, got[0])
	assert.IsType(t, &RawFileTransfer{}, got[1])
	assert.Equal(t, []int{1, 2}, skipped)

	assert.Len(t, DecodeObjects(objs, nil), 2)
}

func TestRawMessage_KeepsGoodPartsAroundUnknownType(t *testing.T) {
	data := []byte(`{"guid":"m3","chat_guid":"c1","parts":[
		{"type":"text-chunk","data":{"message_guid":"m3","text":"hi"}},
		{"type":"poll","data":{}},
		{"type":"file-transfer","data":{"guid":"f1","message_guid":"m3"}}
	]}`)

	var msg RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "m3", msg.GUID)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "hi", msg.Parts[0].(*RawTextChunk).Text)
	assert.Equal(t, "f1", msg.Parts[1].(*RawFileTransfer).GUID)
	assert.Equal(t, 1, msg.Skipped)
}
