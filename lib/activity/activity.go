// Package activity decodes inbound bot protocol activities into a closed
// set of variants.
package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidActivity is returned for payloads that cannot be routed.
var ErrInvalidActivity = errors.New("invalid activity")

// Activity types understood by the bot.
const (
	TypeMessage            = "message"
	TypeInvoke             = "invoke"
	TypeConversationUpdate = "conversationUpdate"
)

// InvokeAdaptiveCardAction is the invoke name of an Action.Execute submit.
const InvokeAdaptiveCardAction = "adaptiveCard/action"

// ChannelAccount is a user or bot on the channel.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// Conversation identifies where the activity happened.
type Conversation struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// ChannelData carries Teams specific metadata.
type ChannelData struct {
	Tenant *struct {
		ID string `json:"id"`
	} `json:"tenant,omitempty"`
	Team *struct {
		ID string `json:"id"`
	} `json:"team,omitempty"`
}

// Envelope holds the fields every activity shares.
type Envelope struct {
	Type         string           `json:"type"`
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name,omitempty"`
	ServiceURL   string           `json:"serviceUrl"`
	ChannelID    string           `json:"channelId,omitempty"`
	From         ChannelAccount   `json:"from"`
	Recipient    ChannelAccount   `json:"recipient"`
	Conversation Conversation     `json:"conversation"`
	ChannelData  *ChannelData     `json:"channelData,omitempty"`
	Text         string           `json:"text,omitempty"`
	Locale       string           `json:"locale,omitempty"`
	Value        json.RawMessage  `json:"value,omitempty"`
	MembersAdded []ChannelAccount `json:"membersAdded,omitempty"`
}

// TenantID resolves the tenant the activity belongs to: the conversation's
// tenant, then the channel data tenant, then fallback.
func (e *Envelope) TenantID(fallback string) string {
	if id := strings.TrimSpace(e.Conversation.TenantID); id != "" {
		return id
	}
	if e.ChannelData != nil && e.ChannelData.Tenant != nil {
		if id := strings.TrimSpace(e.ChannelData.Tenant.ID); id != "" {
			return id
		}
	}
	return fallback
}

// Activity is one of *Message, *Invoke, *ConversationUpdate or *Unsupported.
type Activity interface {
	Common() *Envelope
	isActivity()
}

// AnswerAction tags card submissions that answer a survey question.
const AnswerAction = "survey.answer"

// Answer is a card submission for one of the survey questions.
// Question is 1-based.
type Answer struct {
	Action   string `json:"action"`
	Question int    `json:"question"`
	Value    string `json:"answer"`
}

// Message is a user message, possibly carrying a card submission.
type Message struct {
	Envelope
	Answer *Answer
}

// Invoke is a synchronous card action.
type Invoke struct {
	Envelope
	Answer *Answer
}

// ConversationUpdate reports membership changes.
type ConversationUpdate struct {
	Envelope
	// BotAdded is set when the recipient itself joined the conversation.
	BotAdded bool
}

// Unsupported is any other activity type. It is acknowledged and ignored.
type Unsupported struct {
	Envelope
}

// Common returns the shared fields.
func (e *Envelope) Common() *Envelope { return e }

func (*Message) isActivity()            {}
func (*Invoke) isActivity()             {}
func (*ConversationUpdate) isActivity() {}
func (*Unsupported) isActivity()        {}

// Parse decodes body into its variant.
func Parse(body []byte) (Activity, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidActivity)
	}

	switch env.Type {
	case TypeMessage, TypeInvoke, TypeConversationUpdate:
	default:
		return &Unsupported{Envelope: env}, nil
	}

	if env.Conversation.ID == "" {
		return nil, fmt.Errorf("%w: missing conversation.id", ErrInvalidActivity)
	}
	if env.ServiceURL == "" {
		return nil, fmt.Errorf("%w: missing serviceUrl", ErrInvalidActivity)
	}

	switch env.Type {
	case TypeMessage:
		return &Message{Envelope: env, Answer: decodeAnswer(env.Value)}, nil
	case TypeInvoke:
		invoke := &Invoke{Envelope: env}
		if env.Name == InvokeAdaptiveCardAction {
			invoke.Answer = decodeExecuteAnswer(env.Value)
		}
		return invoke, nil
	default:
		update := &ConversationUpdate{Envelope: env}
		for _, member := range env.MembersAdded {
			if member.ID != "" && member.ID == env.Recipient.ID {
				update.BotAdded = true
				break
			}
		}
		return update, nil
	}
}

// decodeAnswer reads an Action.Submit payload. Anything that is not a tagged
// answer yields nil.
func decodeAnswer(value json.RawMessage) *Answer {
	if len(value) == 0 {
		return nil
	}
	var answer Answer
	if err := json.Unmarshal(value, &answer); err != nil {
		return nil
	}
	if answer.Action != AnswerAction || answer.Question <= 0 {
		return nil
	}
	answer.Value = strings.TrimSpace(answer.Value)
	return &answer
}

// decodeExecuteAnswer reads the data of an Action.Execute invoke.
func decodeExecuteAnswer(value json.RawMessage) *Answer {
	var invoke struct {
		Action struct {
			Verb string          `json:"verb"`
			Data json.RawMessage `json:"data"`
		} `json:"action"`
	}
	if err := json.Unmarshal(value, &invoke); err != nil {
		return nil
	}
	return decodeAnswer(invoke.Action.Data)
}
