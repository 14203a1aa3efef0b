package ingest

import (
	"fmt"
	"reflect"
	"time"

	"courier/internal/logger"
	"courier/internal/store"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/models"
)

// RichLinkBundleID is the plugin bundle rich link previews are reported
// under.
const RichLinkBundleID = "com.courier.rich-link"

// DefaultVariants is the canonical type table for the store's raw objects.
func DefaultVariants() []Variant {
	return []Variant{
		{
			Kind:      models.ItemKindMessage,
			Accepts:   []reflect.Type{TypeOf[*store.RawMessage]()},
			Construct: newMessage,
			Composite: true,
		},
		{
			Kind:      models.ItemKindAttachment,
			Accepts:   []reflect.Type{TypeOf[*store.RawFileTransfer]()},
			Construct: newAttachment,
		},
		{
			Kind:      models.ItemKindTextPart,
			Accepts:   []reflect.Type{TypeOf[*store.RawTextChunk]()},
			Construct: newTextPart,
		},
		{
			Kind:      models.ItemKindStatus,
			Accepts:   []reflect.Type{TypeOf[*store.RawStatusChange](), TypeOf[*store.RawReadReceipt]()},
			Construct: newStatus,
		},
		{
			Kind:      models.ItemKindAcknowledgment,
			Accepts:   []reflect.Type{TypeOf[*store.RawTapback]()},
			Construct: newAcknowledgment,
		},
		{
			Kind:      models.ItemKindSticker,
			Accepts:   []reflect.Type{TypeOf[*store.RawStickerPlacement]()},
			Construct: newSticker,
		},
		{
			Kind:      models.ItemKindAction,
			Accepts:   []reflect.Type{TypeOf[*store.RawGroupAction](), TypeOf[*store.RawParticipantChange]()},
			Construct: newAction,
		},
		{
			Kind:      models.ItemKindPlugin,
			Accepts:   []reflect.Type{TypeOf[*store.RawPluginPayload](), TypeOf[*store.RawRichLink]()},
			Construct: newPlugin,
		},
	}
}

func DefaultRegistry(log logger.Logger) *Registry {
	return MustNewRegistry(log, DefaultVariants()...)
}

func malformed(format string, args ...interface{}) error {
	return pkgerrors.ErrMalformedObject.WithDetail("message", fmt.Sprintf(format, args...))
}

func header(id, conversationID string, isFromMe bool, t time.Time) models.ItemHeader {
	return models.ItemHeader{
		ID:             id,
		ConversationID: conversationID,
		IsFromMe:       isFromMe,
		Time:           t.UTC(),
	}
}

// itemTime falls back to the parent's time for constituents without one.
func itemTime(own time.Time, ictx *Context) time.Time {
	if !own.IsZero() || ictx == nil || ictx.Parent == nil {
		return own
	}
	return ictx.Parent.Header().Time
}

func newMessage(r *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	m := raw.(*store.RawMessage)
	if m.GUID == "" {
		return nil, malformed("message without guid")
	}

	conv := ictx.resolveConversation(m.ChatGUID)
	if conv == "" {
		return nil, malformed("message %s has no conversation", m.GUID)
	}

	item := models.MessageItem{
		ItemHeader: header(m.GUID, conv, m.IsFromMe, m.Date),
		Sender:     m.Handle,
		Subject:    m.Subject,
		Service:    m.Service,
		ReplyToID:  m.ReplyToGUID,
		IsRead:     m.IsRead,
	}

	if ictx != nil && ictx.Parts != nil {
		item.Parts = messageParts(ictx.Parts)
	} else {
		item.Parts = messageParts(r.ClassifyBatch(m.Parts, ictx.child(item)))
	}

	if len(item.Parts) == 0 && item.Subject == "" {
		return nil, malformed("message %s has no classifiable parts", m.GUID)
	}

	return item, nil
}

// messageParts keeps the kinds a message may contain.
func messageParts(items models.Items) models.Items {
	out := make(models.Items, 0, len(items))
	for _, it := range items {
		switch it.Kind() {
		case models.ItemKindTextPart, models.ItemKindAttachment:
			out = append(out, it)
		}
	}
	return out
}

func newAttachment(_ *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	f := raw.(*store.RawFileTransfer)
	if f.GUID == "" {
		return nil, malformed("file transfer without guid")
	}

	messageID := f.MessageGUID
	if messageID == "" {
		messageID = ictx.parentID()
	}

	item := models.AttachmentItem{
		ItemHeader: header(f.GUID, ictx.resolveConversation(f.ChatGUID), f.IsFromMe, itemTime(f.Date, ictx)),
		MessageID:  messageID,
		Filename:   f.Filename,
		MIMEType:   f.MIMEType,
		Size:       f.TotalBytes,
		Path:       f.Path,
	}

	if meta, ok := ictx.attachment(f.GUID); ok {
		if item.Filename == "" {
			item.Filename = meta.Filename
		}
		if item.MIMEType == "" {
			item.MIMEType = meta.MIMEType
		}
		if item.Size == 0 {
			item.Size = meta.Size
		}
		if item.Path == "" {
			item.Path = meta.Path
		}
	}

	return item, nil
}

func newTextPart(_ *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	c := raw.(*store.RawTextChunk)

	messageID := c.MessageGUID
	if messageID == "" {
		messageID = ictx.parentID()
	}
	if messageID == "" {
		return nil, malformed("text chunk %d has no owning message", c.Index)
	}
	if c.Text == "" {
		return nil, malformed("text chunk %d of %s is empty", c.Index, messageID)
	}

	isFromMe := c.IsFromMe
	if ictx != nil && ictx.Parent != nil {
		isFromMe = ictx.Parent.Header().IsFromMe
	}

	return models.TextPartItem{
		ItemHeader: header(TextPartID(c.Index, messageID), ictx.resolveConversation(c.ChatGUID), isFromMe, itemTime(c.Date, ictx)),
		MessageID:  messageID,
		Index:      c.Index,
		Text:       c.Text,
	}, nil
}

// TextPartID derives the identifier of a message's index-th text part.
func TextPartID(index int, messageID string) string {
	return fmt.Sprintf("p:%d/%s", index, messageID)
}

var deliveryStatuses = map[string]models.DeliveryStatus{
	"sent":      models.DeliveryStatusSent,
	"delivered": models.DeliveryStatusDelivered,
	"read":      models.DeliveryStatusRead,
	"failed":    models.DeliveryStatusFailed,
}

func newStatus(_ *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	switch s := raw.(type) {
	case *store.RawStatusChange:
		if s.MessageGUID == "" {
			return nil, malformed("status change without message guid")
		}
		status, ok := deliveryStatuses[s.Status]
		if !ok {
			return nil, malformed("unknown delivery status %q for %s", s.Status, s.MessageGUID)
		}
		return models.StatusItem{
			ItemHeader: header(s.MessageGUID, ictx.resolveConversation(s.ChatGUID), s.IsFromMe, s.Date),
			MessageID:  s.MessageGUID,
			Status:     status,
		}, nil

	case *store.RawReadReceipt:
		if s.MessageGUID == "" {
			return nil, malformed("read receipt without message guid")
		}
		return models.StatusItem{
			ItemHeader: header(s.MessageGUID, ictx.resolveConversation(s.ChatGUID), s.IsFromMe, s.ReadAt),
			MessageID:  s.MessageGUID,
			Status:     models.DeliveryStatusRead,
		}, nil
	}
	return nil, malformed("unexpected status object %T", raw)
}

func newAcknowledgment(_ *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	t := raw.(*store.RawTapback)
	if t.GUID == "" || t.TargetGUID == "" {
		return nil, malformed("tapback without guid or target")
	}
	if t.Reaction == "" {
		return nil, malformed("tapback %s without reaction", t.GUID)
	}

	return models.AcknowledgmentItem{
		ItemHeader: header(t.GUID, ictx.resolveConversation(t.ChatGUID), t.IsFromMe, t.Date),
		TargetID:   t.TargetGUID,
		TargetPart: t.TargetPart,
		Reaction:   t.Reaction,
		Removed:    t.Removed,
		Sender:     t.Handle,
	}, nil
}

func newSticker(_ *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	s := raw.(*store.RawStickerPlacement)
	if s.GUID == "" || s.TargetGUID == "" || s.AttachmentGUID == "" {
		return nil, malformed("sticker placement missing guid, target or attachment")
	}

	return models.StickerItem{
		ItemHeader:   header(s.GUID, ictx.resolveConversation(s.ChatGUID), s.IsFromMe, s.Date),
		TargetID:     s.TargetGUID,
		AttachmentID: s.AttachmentGUID,
		Sender:       s.Handle,
	}, nil
}

var groupActions = map[string]models.ActionKind{
	"rename":       models.ActionRename,
	"leave":        models.ActionLeave,
	"photo-change": models.ActionPhotoChange,
}

func newAction(_ *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	switch a := raw.(type) {
	case *store.RawGroupAction:
		if a.GUID == "" {
			return nil, malformed("group action without guid")
		}
		action, ok := groupActions[a.Action]
		if !ok {
			return nil, malformed("unknown group action %q", a.Action)
		}
		return models.ActionItem{
			ItemHeader: header(a.GUID, ictx.resolveConversation(a.ChatGUID), a.IsFromMe, a.Date),
			Action:     action,
			Actor:      a.Actor,
			NewValue:   a.NewValue,
		}, nil

	case *store.RawParticipantChange:
		if a.GUID == "" || a.Handle == "" {
			return nil, malformed("participant change without guid or handle")
		}
		action := models.ActionRemoveParticipant
		if a.Added {
			action = models.ActionAddParticipant
		}
		return models.ActionItem{
			ItemHeader: header(a.GUID, ictx.resolveConversation(a.ChatGUID), a.IsFromMe, a.Date),
			Action:     action,
			Actor:      a.Actor,
			Target:     a.Handle,
		}, nil
	}
	return nil, malformed("unexpected action object %T", raw)
}

func newPlugin(_ *Registry, raw interface{}, ictx *Context) (models.Item, error) {
	switch p := raw.(type) {
	case *store.RawPluginPayload:
		if p.GUID == "" || p.BundleID == "" {
			return nil, malformed("plugin payload without guid or bundle id")
		}
		return models.PluginItem{
			ItemHeader: header(p.GUID, ictx.resolveConversation(p.ChatGUID), p.IsFromMe, p.Date),
			BundleID:   p.BundleID,
			Payload:    p.Data,
		}, nil

	case *store.RawRichLink:
		if p.GUID == "" || p.URL == "" {
			return nil, malformed("rich link without guid or url")
		}
		return models.PluginItem{
			ItemHeader: header(p.GUID, ictx.resolveConversation(p.ChatGUID), p.IsFromMe, p.Date),
			BundleID:   RichLinkBundleID,
			URL:        p.URL,
		}, nil
	}
	return nil, malformed("unexpected plugin object %T", raw)
}
