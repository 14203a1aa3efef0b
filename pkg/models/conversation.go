package models

import "time"

type Conversation struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name,omitempty"`
	Participants []string  `json:"participants"`
	IsGroup      bool      `json:"is_group"`
	Service      string    `json:"service,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	UnreadCount  int       `json:"unread_count"`
	Joined       bool      `json:"joined"`
}

type Contact struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Nickname  string   `json:"nickname,omitempty"`
	Handles   []string `json:"handles"`
}

// DisplayName picks the nickname, then the full name, then the first handle.
func (c Contact) DisplayName() string {
	if c.Nickname != "" {
		return c.Nickname
	}
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name != "" {
		return name
	}
	if len(c.Handles) > 0 {
		return c.Handles[0]
	}
	return c.ID
}
