package models

import (
	"encoding/json"
	"time"
)

type ChangeRecordBuilder struct {
	record *ChangeRecord
	err    error
}

func NewChangeRecordBuilder() *ChangeRecordBuilder {
	return &ChangeRecordBuilder{
		record: &ChangeRecord{
			Metadata: Metadata{},
		},
	}
}

func (b *ChangeRecordBuilder) WithID(id string) *ChangeRecordBuilder {
	b.record.ID = id
	return b
}

func (b *ChangeRecordBuilder) WithCategory(category ChangeCategory) *ChangeRecordBuilder {
	b.record.Category = category
	return b
}

func (b *ChangeRecordBuilder) WithConversation(conversationID string) *ChangeRecordBuilder {
	b.record.ConversationID = conversationID
	return b
}

func (b *ChangeRecordBuilder) WithTimestamp(timestamp time.Time) *ChangeRecordBuilder {
	b.record.Timestamp = timestamp
	return b
}

// WithObject appends an inline raw object, JSON-encoding data.
func (b *ChangeRecordBuilder) WithObject(objectType string, data interface{}) *ChangeRecordBuilder {
	raw, err := json.Marshal(data)
	if err != nil {
		b.err = err
		return b
	}
	b.record.Objects = append(b.record.Objects, RawObject{Type: objectType, Data: raw})
	return b
}

func (b *ChangeRecordBuilder) WithIDs(ids ...string) *ChangeRecordBuilder {
	b.record.IDs = append(b.record.IDs, ids...)
	return b
}

func (b *ChangeRecordBuilder) WithValue(value interface{}) *ChangeRecordBuilder {
	raw, err := json.Marshal(value)
	if err != nil {
		b.err = err
		return b
	}
	b.record.Value = raw
	return b
}

func (b *ChangeRecordBuilder) WithTraceID(traceID string) *ChangeRecordBuilder {
	b.record.Metadata.TraceID = traceID
	return b
}

func (b *ChangeRecordBuilder) Build() (*ChangeRecord, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.record.Timestamp.IsZero() {
		b.record.Timestamp = time.Now()
	}
	return b.record, nil
}
