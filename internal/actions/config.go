package actions

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeSendMessage = "send_message"
	TypeTagEntity   = "tag_entity"
)

// Config is the closed set of action node configurations. Every action node
// config parses into exactly one of SendMessage, TagEntity or Unknown.
type Config interface {
	Type() string
	isConfig()
}

type SendMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type TagEntity struct {
	Label string `json:"label"`
}

// Unknown is any config that failed to parse or validate. Executing it always
// fails the step with invalid_action_config.
type Unknown struct {
	RawType string
	Reason  string
}

func (SendMessage) Type() string { return TypeSendMessage }
func (TagEntity) Type() string   { return TypeTagEntity }
func (u Unknown) Type() string   { return u.RawType }

func (SendMessage) isConfig() {}
func (TagEntity) isConfig()   {}
func (Unknown) isConfig()     {}

type envelope struct {
	Type string `json:"type"`
}

// Parse decodes and validates the raw JSON config of an action node.
func Parse(raw string) Config {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Unknown{Reason: fmt.Sprintf("malformed config: %v", err)}
	}
	switch env.Type {
	case TypeSendMessage:
		var c SendMessage
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return Unknown{RawType: env.Type, Reason: err.Error()}
		}
		c.Channel = strings.TrimSpace(c.Channel)
		if c.Channel == "" {
			return Unknown{RawType: env.Type, Reason: "channel is required"}
		}
		if strings.TrimSpace(c.To) == "" {
			return Unknown{RawType: env.Type, Reason: "to is required"}
		}
		return c
	case TypeTagEntity:
		var c TagEntity
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return Unknown{RawType: env.Type, Reason: err.Error()}
		}
		c.Label = strings.TrimSpace(c.Label)
		if c.Label == "" {
			return Unknown{RawType: env.Type, Reason: "label is required"}
		}
		return c
	case "":
		return Unknown{Reason: "missing type"}
	default:
		return Unknown{RawType: env.Type, Reason: "unsupported action type"}
	}
}
