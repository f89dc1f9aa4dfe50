package push

import (
	"encoding/json"
	"strings"
)

const (
	DefaultTitle = "Food Inventory"
	DefaultBody  = "You have items expiring soon."
	DefaultIcon  = "/icon-192x192.png"
	DefaultTag   = "expiry-reminder"
	DefaultURL   = "/dashboard"
)

// Payload is the decoded body of one push message.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// DecodePayload never fails: a body that is not a JSON object of strings
// yields both defaults, and a missing or blank field yields its own default.
func DecodePayload(data []byte) Payload {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{Title: DefaultTitle, Body: DefaultBody}
	}
	if strings.TrimSpace(p.Title) == "" {
		p.Title = DefaultTitle
	}
	if strings.TrimSpace(p.Body) == "" {
		p.Body = DefaultBody
	}
	return p
}
