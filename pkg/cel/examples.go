package cel

// FilterExpressionExamples are accepted by the events endpoint's filter
// parameter.
var FilterExpressionExamples = map[string]string{
	"by_type":            `type == "items-received"`,
	"any_of_types":       `type in ["items-received", "items-updated"]`,
	"conversation":       `has(payload.conversation_id) && payload.conversation_id == "chat-1"`,
	"incoming_only":      `type == "items-received" && payload.items.exists(i, i.type == "message" && !i.payload.is_from_me)`,
	"status_read":        `type == "item-status-changed" && payload.item.status == "read"`,
	"contacts":           `type.startsWith("contact-")`,
	"joined":             `type == "conversation-join-state-changed" && payload.joined`,
	"health_not_ok":      `type == "health-changed" && payload.status != "healthy"`,
	"many_participants":  `type == "participants-changed" && size(payload.participants) > 2`,
	"text_contains_word": `type == "items-received" && payload.items.exists(i, has(i.payload.parts) && i.payload.parts.exists(p, p.type == "text-part" && p.payload.text.contains("hello")))`,
}
