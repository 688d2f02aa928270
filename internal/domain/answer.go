package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// NumericTolerance is the strict absolute-difference bound for numeric
// grading: a submitted value is correct iff |target - value| < 1e-6.
const NumericTolerance = 1e-6

// AnswerKey is the grading rule of a problem: exactly one of a correct option
// or a correct numeric value. The sealed variants keep the two modes from
// ever being evaluated together.
type AnswerKey interface {
	answerKey()
}

// ChoiceKey grades a multiple-choice problem against one correct option.
type ChoiceKey struct {
	OptionID int64
}

// NumericKey grades a free-form numeric problem against a target value.
type NumericKey struct {
	Value float64
}

func (ChoiceKey) answerKey()  {}
func (NumericKey) answerKey() {}

// AnswerItem is one submitted answer. Exactly one of OptionID or Value should
// be present; when both are, the option is graded (and the value ignored).
type AnswerItem struct {
	ProblemID int64        `json:"problem_id"`
	OptionID  *int64       `json:"option_id,omitempty"`
	Value     *AnswerValue `json:"value,omitempty"`
}

// AnswerValue is a submitted numeric answer. Malformed input (a non-numeric
// string, say) is preserved and graded as incorrect rather than rejected.
type AnswerValue struct {
	Num   float64
	Valid bool
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return err
		}
		s = unquoted
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		*v = AnswerValue{}
		return nil
	}
	*v = AnswerValue{Num: num, Valid: true}
	return nil
}

// MarshalJSON writes the parsed number, or null for unparseable input.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Num)
}

// Number wraps a float in a valid AnswerValue; a test and seed convenience.
func Number(f float64) *AnswerValue {
	return &AnswerValue{Num: f, Valid: true}
}

// Grade scores one answer item against the problem. Unknown options and
// malformed numeric values are incorrect, never errors; the submission engine
// rejects an item with neither field before grading.
func (p Problem) Grade(item AnswerItem) bool {
	switch {
	case item.OptionID != nil:
		key, ok := p.Key.(ChoiceKey)
		if !ok || !p.HasOption(*item.OptionID) {
			return false
		}
		return *item.OptionID == key.OptionID
	case item.Value != nil:
		key, ok := p.Key.(NumericKey)
		if !ok || !item.Value.Valid {
			return false
		}
		return math.Abs(key.Value-item.Value.Num) < NumericTolerance
	default:
		return false
	}
}
