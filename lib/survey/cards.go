package survey

import (
	"fmt"

	"github.com/iesreza/homa-teams-bot/lib/activity"
)

// AdaptiveCardContentType is the attachment content type of an Adaptive Card.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

const cardVersion = "1.4"

// Question is one fixed survey question.
type Question struct {
	Prompt  string
	Choices []string
}

// Questions is the questionnaire, asked in order.
var Questions = [QuestionCount]Question{
	{
		Prompt:  "How satisfied are you with your onboarding so far?",
		Choices: []string{"Very satisfied", "Satisfied", "Neutral", "Dissatisfied"},
	},
	{
		Prompt:  "How often do you use the product?",
		Choices: []string{"Daily", "Weekly", "Monthly", "Rarely"},
	},
	{
		Prompt:  "Would you recommend us to a colleague?",
		Choices: []string{"Yes", "Maybe", "No"},
	},
}

// Reply is an outbound message activity.
type Reply struct {
	Type        string       `json:"type"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment wraps a card.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

// Card is a static Adaptive Card.
type Card struct {
	Type    string    `json:"type"`
	Schema  string    `json:"$schema"`
	Version string    `json:"version"`
	Body    []Element `json:"body"`
	Actions []Action  `json:"actions,omitempty"`
}

// Element is a card body element.
type Element struct {
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	Text    string   `json:"text,omitempty"`
	Size    string   `json:"size,omitempty"`
	Weight  string   `json:"weight,omitempty"`
	Wrap    bool     `json:"wrap,omitempty"`
	Style   string   `json:"style,omitempty"`
	Choices []Choice `json:"choices,omitempty"`
	Facts   []Fact   `json:"facts,omitempty"`
}

// Choice is an option of an Input.ChoiceSet.
type Choice struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Fact is a FactSet row.
type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Action is a card action.
type Action struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Data  map[string]any `json:"data,omitempty"`
}

// TextReply is a plain text message.
func TextReply(text string) Reply {
	return Reply{Type: activity.TypeMessage, Text: text}
}

func cardReply(card Card) Reply {
	return Reply{
		Type:        activity.TypeMessage,
		Attachments: []Attachment{{ContentType: AdaptiveCardContentType, Content: card}},
	}
}

// QuestionCard renders question n (1-based) with a choice set and a submit
// action tagged with the question index.
func QuestionCard(n int) Reply {
	q := Questions[n-1]
	choices := make([]Choice, len(q.Choices))
	for i, c := range q.Choices {
		choices[i] = Choice{Title: c, Value: c}
	}
	return cardReply(Card{
		Type:    "AdaptiveCard",
		Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
		Version: cardVersion,
		Body: []Element{
			{Type: "TextBlock", Text: fmt.Sprintf("Question %d of %d", n, QuestionCount), Size: "Small", Weight: "Lighter"},
			{Type: "TextBlock", Text: q.Prompt, Size: "Medium", Weight: "Bolder", Wrap: true},
			{Type: "Input.ChoiceSet", ID: "answer", Style: "expanded", Choices: choices},
		},
		Actions: []Action{{
			Type:  "Action.Submit",
			Title: "Submit",
			Data:  map[string]any{"action": activity.AnswerAction, "question": n},
		}},
	})
}

// SummaryCard lists the recorded answers.
func SummaryCard(answers [QuestionCount]string) Reply {
	facts := make([]Fact, QuestionCount)
	for i, q := range Questions {
		facts[i] = Fact{Title: q.Prompt, Value: answers[i]}
	}
	return cardReply(Card{
		Type:    "AdaptiveCard",
		Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
		Version: cardVersion,
		Body: []Element{
			{Type: "TextBlock", Text: "Thanks! Here is what you told us:", Size: "Medium", Weight: "Bolder", Wrap: true},
			{Type: "FactSet", Facts: facts},
			{Type: "TextBlock", Text: `Say "restart" to take the survey again.`, Wrap: true, Size: "Small"},
		},
	})
}

// WelcomeReply greets a conversation the bot was added to.
func WelcomeReply() Reply {
	return TextReply("Hi! I have three quick questions for you. Send any message to begin.")
}
