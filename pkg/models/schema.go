package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateChangeRecord(rec *ChangeRecord) error {
	if rec == nil {
		return &ValidationError{
			Field:   "record",
			Message: "change record cannot be nil",
		}
	}

	if rec.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "record ID is required",
		}
	}

	if rec.Category == "" {
		return &ValidationError{
			Field:   "category",
			Message: "record category is required",
		}
	}

	if !rec.Category.Known() {
		return &ValidationError{
			Field:   "category",
			Message: fmt.Sprintf("unknown category: %s", rec.Category),
		}
	}

	if rec.Category.ScopedToConversation() && rec.ConversationID == "" {
		return &ValidationError{
			Field:   "conversation_id",
			Message: fmt.Sprintf("conversation ID is required for %s", rec.Category),
		}
	}

	if rec.Category == CategoryContactRemoved && len(rec.IDs) == 0 {
		return &ValidationError{
			Field:   "ids",
			Message: "contact-removed requires the removed contact ID",
		}
	}

	for i, obj := range rec.Objects {
		if obj.Type == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("objects[%d].type", i),
				Message: "object type is required",
			}
		}
	}

	return nil
}
