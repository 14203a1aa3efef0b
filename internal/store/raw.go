package store

import (
	"encoding/json"
	"time"

	"courier/pkg/models"
)

// Raw object type names as they appear in change records.
const (
	ObjectMessage           = "message"
	ObjectFileTransfer      = "file-transfer"
	ObjectTextChunk         = "text-chunk"
	ObjectStatusChange      = "status-change"
	ObjectReadReceipt       = "read-receipt"
	ObjectTapback           = "tapback"
	ObjectStickerPlacement  = "sticker-placement"
	ObjectGroupAction       = "group-action"
	ObjectParticipantChange = "participant-change"
	ObjectPluginPayload     = "plugin-payload"
	ObjectRichLink          = "rich-link"
	ObjectChat              = "chat"
	ObjectContact           = "contact"
)

// RawMessage is a message row. Parts holds the raw constituents (text
// chunks, file transfers) in their original order. Parts that do not decode
// are left out and counted in Skipped.
type RawMessage struct {
	GUID        string        `json:"guid"`
	ChatGUID    string        `json:"chat_guid"`
	Handle      string        `json:"handle,omitempty"`
	IsFromMe    bool          `json:"is_from_me"`
	Date        time.Time     `json:"date"`
	Subject     string        `json:"subject,omitempty"`
	Service     string        `json:"service,omitempty"`
	ReplyToGUID string        `json:"reply_to_guid,omitempty"`
	IsRead      bool          `json:"is_read"`
	Parts       []interface{} `json:"-"`
	Skipped     int           `json:"-"`
}

func (m *RawMessage) UnmarshalJSON(data []byte) error {
	type alias RawMessage
	aux := struct {
		*alias
		Parts []models.RawObject `json:"parts"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.Skipped = 0
	m.Parts = DecodeObjects(aux.Parts, func(int, models.RawObject, error) { m.Skipped++ })
	return nil
}

func (m RawMessage) MarshalJSON() ([]byte, error) {
	type alias RawMessage
	parts, err := EncodeObjects(m.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Parts []models.RawObject `json:"parts,omitempty"`
	}{alias: alias(m), Parts: parts})
}

type RawFileTransfer struct {
	GUID        string    `json:"guid"`
	MessageGUID string    `json:"message_guid"`
	ChatGUID    string    `json:"chat_guid"`
	IsFromMe    bool      `json:"is_from_me"`
	Date        time.Time `json:"date"`
	Filename    string    `json:"filename,omitempty"`
	MIMEType    string    `json:"mime_type,omitempty"`
	TotalBytes  int64     `json:"total_bytes"`
	Path        string    `json:"path,omitempty"`
}

// RawTextChunk is one attributed run of a message body. Chunks have no
// identity of their own.
type RawTextChunk struct {
	MessageGUID string    `json:"message_guid"`
	ChatGUID    string    `json:"chat_guid"`
	IsFromMe    bool      `json:"is_from_me"`
	Date        time.Time `json:"date"`
	Index       int       `json:"index"`
	Text        string    `json:"text"`
}

type RawStatusChange struct {
	MessageGUID string    `json:"message_guid"`
	ChatGUID    string    `json:"chat_guid"`
	IsFromMe    bool      `json:"is_from_me"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
}

type RawReadReceipt struct {
	MessageGUID string    `json:"message_guid"`
	ChatGUID    string    `json:"chat_guid"`
	IsFromMe    bool      `json:"is_from_me"`
	ReadAt      time.Time `json:"read_at"`
}

type RawTapback struct {
	GUID       string    `json:"guid"`
	TargetGUID string    `json:"target_guid"`
	TargetPart int       `json:"target_part"`
	ChatGUID   string    `json:"chat_guid"`
	Handle     string    `json:"handle,omitempty"`
	IsFromMe   bool      `json:"is_from_me"`
	Date       time.Time `json:"date"`
	Reaction   string    `json:"reaction"`
	Removed    bool      `json:"removed"`
}

type RawStickerPlacement struct {
	GUID           string    `json:"guid"`
	TargetGUID     string    `json:"target_guid"`
	AttachmentGUID string    `json:"attachment_guid"`
	ChatGUID       string    `json:"chat_guid"`
	Handle         string    `json:"handle,omitempty"`
	IsFromMe       bool      `json:"is_from_me"`
	Date           time.Time `json:"date"`
}

// RawGroupAction covers renames, leaves and photo changes.
type RawGroupAction struct {
	GUID     string    `json:"guid"`
	ChatGUID string    `json:"chat_guid"`
	Action   string    `json:"action"`
	Actor    string    `json:"actor,omitempty"`
	NewValue string    `json:"new_value,omitempty"`
	IsFromMe bool      `json:"is_from_me"`
	Date     time.Time `json:"date"`
}

type RawParticipantChange struct {
	GUID     string    `json:"guid"`
	ChatGUID string    `json:"chat_guid"`
	Added    bool      `json:"added"`
	Actor    string    `json:"actor,omitempty"`
	Handle   string    `json:"handle"`
	IsFromMe bool      `json:"is_from_me"`
	Date     time.Time `json:"date"`
}

type RawPluginPayload struct {
	GUID     string    `json:"guid"`
	ChatGUID string    `json:"chat_guid"`
	BundleID string    `json:"bundle_id"`
	Data     []byte    `json:"data,omitempty"`
	IsFromMe bool      `json:"is_from_me"`
	Date     time.Time `json:"date"`
}

type RawRichLink struct {
	GUID     string    `json:"guid"`
	ChatGUID string    `json:"chat_guid"`
	URL      string    `json:"url"`
	IsFromMe bool      `json:"is_from_me"`
	Date     time.Time `json:"date"`
}

type RawChat struct {
	GUID         string    `json:"guid"`
	DisplayName  string    `json:"display_name,omitempty"`
	Participants []string  `json:"participants"`
	Style        int       `json:"style"` // 43 = group, 45 = one-to-one
	Service      string    `json:"service,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	UnreadCount  int       `json:"unread_count"`
	Joined       bool      `json:"joined"`
}

const ChatStyleGroup = 43

type RawContact struct {
	Identifier string   `json:"identifier"`
	FirstName  string   `json:"first_name,omitempty"`
	LastName   string   `json:"last_name,omitempty"`
	Nickname   string   `json:"nickname,omitempty"`
	Handles    []string `json:"handles"`
}
