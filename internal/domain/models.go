package domain

import (
	"encoding/json"
	"time"
)

// Lesson is an immutable set of problems; order is not significant.
type Lesson struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Problems []Problem `json:"problems"`
}

// ProblemByID returns the lesson's problem with the given id.
func (l Lesson) ProblemByID(id int64) (Problem, bool) {
	for i := range l.Problems {
		if l.Problems[i].ID == id {
			return l.Problems[i], true
		}
	}
	return Problem{}, false
}

// ProblemIDs returns the ids of all problems in the lesson.
func (l Lesson) ProblemIDs() []int64 {
	ids := make([]int64, 0, len(l.Problems))
	for i := range l.Problems {
		ids = append(ids, l.Problems[i].ID)
	}
	return ids
}

// Problem is a single question inside a lesson. Key determines how it is
// graded; a problem with a nil Key can never be answered correctly.
type Problem struct {
	ID       int64
	Question string
	Options  []ProblemOption
	Key      AnswerKey
}

// HasOption reports whether the option belongs to this problem.
func (p Problem) HasOption(optionID int64) bool {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return true
		}
	}
	return false
}

// ProblemOption is one selectable answer of a choice problem. Option text is
// not required to be unique within a problem.
type ProblemOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// problemJSON is the wire form used to round-trip problems through caches.
// The answer key is flattened into the two nullable fields the schema uses.
type problemJSON struct {
	ID              int64           `json:"id"`
	Question        string          `json:"question"`
	Options         []ProblemOption `json:"options"`
	CorrectOptionID *int64          `json:"correctOptionId,omitempty"`
	CorrectValue    *float64        `json:"correctValue,omitempty"`
}

// MarshalJSON encodes the answer key as correctOptionId / correctValue.
func (p Problem) MarshalJSON() ([]byte, error) {
	out := problemJSON{ID: p.ID, Question: p.Question, Options: p.Options}
	switch key := p.Key.(type) {
	case ChoiceKey:
		id := key.OptionID
		out.CorrectOptionID = &id
	case NumericKey:
		v := key.Value
		out.CorrectValue = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the tagged answer key. A choice key wins if both
// fields are somehow populated, matching grading precedence.
func (p *Problem) UnmarshalJSON(data []byte) error {
	var in problemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.ID = in.ID
	p.Question = in.Question
	p.Options = in.Options
	p.Key = nil
	switch {
	case in.CorrectOptionID != nil:
		p.Key = ChoiceKey{OptionID: *in.CorrectOptionID}
	case in.CorrectValue != nil:
		p.Key = NumericKey{Value: *in.CorrectValue}
	}
	return nil
}

// User accumulates XP and daily-streak state. TotalXP and the streak counters
// only move through Advance while the ledger holds the user's row lock.
type User struct {
	ID            int64
	Username      string
	TotalXP       int
	CurrentStreak int
	BestStreak    int
	LastActivity  *Date
}

// ProblemProgress is the durable record of "has this user ever solved this
// problem". One row per (user, problem); Solved never reverts to false.
type ProblemProgress struct {
	UserID    int64
	ProblemID int64
	Solved    bool
	SolvedAt  time.Time
}

// SubmissionResult stores the outcome of one attempt, keyed by the
// client-supplied attempt id. Write-once.
type SubmissionResult struct {
	AttemptID    string
	UserID       int64
	LessonID     int64
	CorrectCount int
	EarnedXP     int
	Details      map[int64]bool
	CreatedAt    time.Time
}
