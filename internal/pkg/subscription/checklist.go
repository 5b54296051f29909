package subscription

import (
	"bytes"
	"encoding/json"
)

// StepOutcome is the terminal state of one pipeline step.
type StepOutcome string

const (
	StepDone    StepOutcome = "done"
	StepFailed  StepOutcome = "failed"
	StepSkipped StepOutcome = "skipped"
)

type checklistEntry struct {
	name    string
	outcome StepOutcome
}

// Checklist records pipeline step outcomes in execution order. It is an
// audit trail for the response payload only and never gates control flow.
type Checklist struct {
	entries []checklistEntry
}

func NewChecklist() *Checklist {
	return &Checklist{}
}

func (l *Checklist) Done(step string)    { l.set(step, StepDone) }
func (l *Checklist) Failed(step string)  { l.set(step, StepFailed) }
func (l *Checklist) Skipped(step string) { l.set(step, StepSkipped) }

func (l *Checklist) set(step string, outcome StepOutcome) {
	for i := range l.entries {
		if l.entries[i].name == step {
			l.entries[i].outcome = outcome
			return
		}
	}
	l.entries = append(l.entries, checklistEntry{name: step, outcome: outcome})
}

// Outcome returns the recorded outcome for a step and whether it was recorded.
func (l *Checklist) Outcome(step string) (StepOutcome, bool) {
	for _, e := range l.entries {
		if e.name == step {
			return e.outcome, true
		}
	}
	return "", false
}

// Len returns the number of recorded steps.
func (l *Checklist) Len() int {
	return len(l.entries)
}

// MarshalJSON renders the checklist as a JSON object whose keys keep
// execution order, matching the step-by-step shape webhook consumers expect.
func (l *Checklist) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range l.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(string(e.outcome))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
