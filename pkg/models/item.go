package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ItemKind names one case of the canonical item union.
type ItemKind string

const (
	ItemKindMessage        ItemKind = "message"
	ItemKindAttachment     ItemKind = "attachment"
	ItemKindTextPart       ItemKind = "text-part"
	ItemKindStatus         ItemKind = "status"
	ItemKindAcknowledgment ItemKind = "acknowledgment"
	ItemKindSticker        ItemKind = "sticker"
	ItemKindAction         ItemKind = "action"
	ItemKindPlugin         ItemKind = "plugin"
)

// AllItemKinds lists every case of the union in declaration order.
func AllItemKinds() []ItemKind {
	return []ItemKind{
		ItemKindMessage,
		ItemKindAttachment,
		ItemKindTextPart,
		ItemKindStatus,
		ItemKindAcknowledgment,
		ItemKindSticker,
		ItemKindAction,
		ItemKindPlugin,
	}
}

// Item is a normalized transcript unit. The set of implementations is
// closed; only the types in this file satisfy it.
type Item interface {
	Kind() ItemKind
	Header() ItemHeader
	isItem()
}

// ItemHeader carries the fields every item case shares.
type ItemHeader struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	IsFromMe       bool      `json:"is_from_me"`
	Time           time.Time `json:"time"`
}

func (h ItemHeader) Header() ItemHeader { return h }

func (ItemHeader) isItem() {}

type MessageItem struct {
	ItemHeader
	Sender    string `json:"sender,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Service   string `json:"service,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	IsRead    bool   `json:"is_read"`
	Parts     Items  `json:"parts"`
}

func (MessageItem) Kind() ItemKind { return ItemKindMessage }

// Text joins the text parts of the message in index order.
func (m MessageItem) Text() string {
	var b strings.Builder
	for _, part := range m.Parts {
		if tp, ok := part.(TextPartItem); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

type AttachmentItem struct {
	ItemHeader
	MessageID string `json:"message_id"`
	Filename  string `json:"filename,omitempty"`
	MIMEType  string `json:"mime_type,omitempty"`
	Size      int64  `json:"size"`
	Path      string `json:"path,omitempty"`
}

func (AttachmentItem) Kind() ItemKind { return ItemKindAttachment }

type TextPartItem struct {
	ItemHeader
	MessageID string `json:"message_id"`
	Index     int    `json:"index"`
	Text      string `json:"text"`
}

func (TextPartItem) Kind() ItemKind { return ItemKindTextPart }

// DeliveryStatus is the delivery state reported by a status item.
type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

type StatusItem struct {
	ItemHeader
	MessageID string         `json:"message_id"`
	Status    DeliveryStatus `json:"status"`
}

func (StatusItem) Kind() ItemKind { return ItemKindStatus }

type AcknowledgmentItem struct {
	ItemHeader
	TargetID   string `json:"target_id"`
	TargetPart int    `json:"target_part"`
	Reaction   string `json:"reaction"`
	Removed    bool   `json:"removed"`
	Sender     string `json:"sender,omitempty"`
}

func (AcknowledgmentItem) Kind() ItemKind { return ItemKindAcknowledgment }

type StickerItem struct {
	ItemHeader
	TargetID     string `json:"target_id"`
	AttachmentID string `json:"attachment_id"`
	Sender       string `json:"sender,omitempty"`
}

func (StickerItem) Kind() ItemKind { return ItemKindSticker }

// ActionKind enumerates group actions.
type ActionKind string

const (
	ActionRename            ActionKind = "rename"
	ActionAddParticipant    ActionKind = "add-participant"
	ActionRemoveParticipant ActionKind = "remove-participant"
	ActionLeave             ActionKind = "leave"
	ActionPhotoChange       ActionKind = "photo-change"
)

type ActionItem struct {
	ItemHeader
	Action   ActionKind `json:"action"`
	Actor    string     `json:"actor,omitempty"`
	Target   string     `json:"target,omitempty"`
	NewValue string     `json:"new_value,omitempty"`
}

func (ActionItem) Kind() ItemKind { return ItemKindAction }

type PluginItem struct {
	ItemHeader
	BundleID string `json:"bundle_id"`
	URL      string `json:"url,omitempty"`
	Payload  []byte `json:"payload,omitempty"`
}

func (PluginItem) Kind() ItemKind { return ItemKindPlugin }

// Items is an ordered list of canonical items. It encodes each element as
// a tagged {"type", "payload"} pair so the case survives serialization.
type Items []Item

type taggedItem struct {
	Type    ItemKind `json:"type" cbor:"type"`
	Payload Item     `json:"payload" cbor:"payload"`
}

func (l Items) tagged() []taggedItem {
	out := make([]taggedItem, 0, len(l))
	for _, item := range l {
		if item == nil {
			continue
		}
		out = append(out, taggedItem{Type: item.Kind(), Payload: item})
	}
	return out
}

func (l Items) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.tagged())
}

func (l Items) MarshalCBOR() ([]byte, error) {
	return canonicalEncMode.Marshal(l.tagged())
}

// IDs returns the identifiers of the items in order.
func (l Items) IDs() []string {
	ids := make([]string, 0, len(l))
	for _, item := range l {
		ids = append(ids, item.Header().ID)
	}
	return ids
}

// OfKind returns the items whose kind matches.
func (l Items) OfKind(kind ItemKind) Items {
	var out Items
	for _, item := range l {
		if item.Kind() == kind {
			out = append(out, item)
		}
	}
	return out
}
