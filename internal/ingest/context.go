package ingest

import (
	"courier/pkg/models"
)

// maxDepth is how deep sub-item classification may go. Items classified
// at depth maxDepth cannot themselves be composite.
const maxDepth = 1

// AttachmentMeta is transfer metadata resolved outside the raw object.
type AttachmentMeta struct {
	Filename string
	MIMEType string
	Size     int64
	Path     string
}

// Context carries what a raw object cannot say about itself. It is built
// per object or per batch and dropped after classification.
type Context struct {
	ConversationID string
	Parent         models.Item
	// Parts, when non-nil, are used as a composite item's sub-items instead
	// of classifying the raw constituents again.
	Parts       models.Items
	Attachments map[string]AttachmentMeta

	depth int
}

func NewContext(conversationID string) *Context {
	return &Context{ConversationID: conversationID}
}

// Depth is the nesting level the context classifies at; 0 is top level.
func (c *Context) Depth() int {
	if c == nil {
		return 0
	}
	return c.depth
}

// child returns the context used for a composite item's constituents.
func (c *Context) child(parent models.Item) *Context {
	ch := &Context{
		Parent: parent,
		depth:  c.Depth() + 1,
	}
	if c != nil {
		ch.ConversationID = c.ConversationID
		ch.Attachments = c.Attachments
	}
	if parent != nil && parent.Header().ConversationID != "" {
		ch.ConversationID = parent.Header().ConversationID
	}
	return ch
}

// resolveConversation picks the first non-empty of the object's own
// conversation id, the context's, and the parent item's.
func (c *Context) resolveConversation(own string) string {
	if own != "" {
		return own
	}
	if c == nil {
		return ""
	}
	if c.ConversationID != "" {
		return c.ConversationID
	}
	if c.Parent != nil {
		return c.Parent.Header().ConversationID
	}
	return ""
}

func (c *Context) parentID() string {
	if c == nil || c.Parent == nil {
		return ""
	}
	return c.Parent.Header().ID
}

func (c *Context) attachment(guid string) (AttachmentMeta, bool) {
	if c == nil || c.Attachments == nil {
		return AttachmentMeta{}, false
	}
	meta, ok := c.Attachments[guid]
	return meta, ok
}
