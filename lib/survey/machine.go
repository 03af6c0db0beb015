// Package survey walks a conversation through a fixed three question
// questionnaire.
package survey

import (
	"strings"
	"time"

	"github.com/iesreza/homa-teams-bot/lib/activity"
)

// QuestionCount is the number of questions asked.
const QuestionCount = 3

// State is the position of a conversation in the questionnaire.
type State string

const (
	NotStarted State = "not_started"
	AwaitingQ1 State = "awaiting_q1"
	AwaitingQ2 State = "awaiting_q2"
	AwaitingQ3 State = "awaiting_q3"
	Completed  State = "completed"
)

var awaiting = [QuestionCount]State{AwaitingQ1, AwaitingQ2, AwaitingQ3}

// RestartPhrases reset a completed survey.
var RestartPhrases = []string{"restart", "start over", "reset"}

// Session is the survey progress of one conversation.
type Session struct {
	ConversationID string                `json:"conversation_id"`
	State          State                 `json:"state"`
	Answers        [QuestionCount]string `json:"answers"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// NewSession returns a session that has not started.
func NewSession(conversationID string) Session {
	return Session{ConversationID: conversationID, State: NotStarted}
}

// NewSessionAt is NewSession stamped with now.
func NewSessionAt(conversationID string, now time.Time) Session {
	s := NewSession(conversationID)
	s.UpdatedAt = now
	return s
}

// Input is what the user sent.
type Input struct {
	Text   string
	Answer *activity.Answer
}

// Step applies in to s and returns the new session with the reply to send.
func Step(s Session, in Input, now time.Time) (Session, Reply) {
	if s.State == "" {
		s.State = NotStarted
	}
	s.UpdatedAt = now

	switch s.State {
	case NotStarted:
		s.Answers = [QuestionCount]string{}
		s.State = AwaitingQ1
		return s, QuestionCard(1)

	case AwaitingQ1, AwaitingQ2, AwaitingQ3:
		if in.Answer == nil || in.Answer.Question < 1 || in.Answer.Question > QuestionCount || in.Answer.Value == "" {
			return s, QuestionCard(current(s.State))
		}
		s.Answers[in.Answer.Question-1] = in.Answer.Value
		next := nextUnanswered(s.Answers)
		if next == 0 {
			s.State = Completed
			return s, SummaryCard(s.Answers)
		}
		s.State = awaiting[next-1]
		return s, QuestionCard(next)

	case Completed:
		if IsRestart(in.Text) {
			return NewSessionAt(s.ConversationID, now), TextReply("Your answers were cleared. Send any message to start again.")
		}
		return s, TextReply(`You have already completed the survey. Say "restart" to take it again.`)

	default:
		// Unknown state, e.g. a corrupted stored session: start over.
		return Step(NewSessionAt(s.ConversationID, now), in, now)
	}
}

// IsRestart reports whether text is one of the restart phrases.
func IsRestart(text string) bool {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	text = strings.TrimRight(text, ".!")
	for _, phrase := range RestartPhrases {
		if text == phrase {
			return true
		}
	}
	return false
}

func current(state State) int {
	for i, s := range awaiting {
		if s == state {
			return i + 1
		}
	}
	return 1
}

// nextUnanswered returns the 1-based index of the first empty answer, or 0.
func nextUnanswered(answers [QuestionCount]string) int {
	for i, a := range answers {
		if a == "" {
			return i + 1
		}
	}
	return 0
}
