package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// ErrUnusableAnswer is returned when a follow-up answer cannot fill the slot
// it was asked for. The question should be asked again.
var ErrUnusableAnswer = errors.New("answer does not fill the slot")

// Slot names a mandatory field that can be asked for.
type Slot string

const (
	SlotName     Slot = "name"
	SlotLocation Slot = "location"
	SlotVMType   Slot = resource.ParamVMType
	SlotUsername Slot = resource.ParamAdminUsername
	SlotRuntime  Slot = resource.ParamRuntime
)

var questionSlots = map[string]Slot{
	QuestionName:     SlotName,
	QuestionLocation: SlotLocation,
	QuestionVMType:   SlotVMType,
	QuestionUsername: SlotUsername,
	QuestionRuntime:  SlotRuntime,
}

// SlotFor returns the slot a question asks about.
func SlotFor(question string) (Slot, bool) {
	s, ok := questionSlots[question]
	return s, ok
}

// Length limits match the request schemas.
const (
	maxNameLen     = 64
	maxUsernameLen = 20
)

// hints are appended when an answer has to be asked for again.
var hints = map[Slot]string{
	SlotName:     "Please reply with a single word of up to 64 letters, digits, '-' or '_'.",
	SlotLocation: "For example: East US, West Europe or UK South.",
	SlotVMType:   "Please answer Windows or Linux.",
	SlotUsername: "Please reply with a single word of up to 20 letters, digits, '-' or '_'.",
	SlotRuntime:  "Please pick one of Node.js, Python, .NET, Java, PHP or Ruby.",
}

// Hint returns the re-ask hint for a question, or "".
func Hint(question string) string {
	s, ok := SlotFor(question)
	if !ok {
		return ""
	}
	return hints[s]
}

var freeRegion = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 ]{1,40}$`)

// ApplyAnswer parses answer as the reply to question and writes the result
// into req. It returns ErrUnusableAnswer when the answer cannot be used.
func ApplyAnswer(req *resource.Request, question, answer string) error {
	slot, ok := SlotFor(question)
	if !ok {
		return fmt.Errorf("unknown question %q", question)
	}
	answer = strings.TrimSpace(answer)
	lower := strings.ToLower(answer)

	switch slot {
	case SlotName:
		v, ok := extractName(answer)
		if !ok {
			v, ok = bareToken(answer)
		}
		if !ok || len(v) > maxNameLen {
			return ErrUnusableAnswer
		}
		req.Name = v

	case SlotLocation:
		if v, ok := extractLocation(answer); ok {
			req.Location = v
			return nil
		}
		trimmed := strings.TrimRight(answer, ".!")
		if !freeRegion.MatchString(trimmed) {
			return ErrUnusableAnswer
		}
		req.Location = resource.TitleCase(trimmed)

	case SlotVMType:
		os, ok := detectOS(lower)
		if !ok {
			return ErrUnusableAnswer
		}
		req.Parameters[resource.ParamVMType] = string(os)

	case SlotUsername:
		v, ok := "", false
		if m := usernamePattern.FindStringSubmatch(answer); m != nil {
			v, ok = m[1], true
		} else {
			v, ok = bareToken(answer)
		}
		if !ok || len(v) > maxUsernameLen {
			return ErrUnusableAnswer
		}
		req.Parameters[resource.ParamAdminUsername] = v

	case SlotRuntime:
		rt, ok := detectRuntime(lower)
		if !ok {
			return ErrUnusableAnswer
		}
		req.Parameters[resource.ParamRuntime] = string(rt)
	}
	return nil
}

// bareToken accepts an answer that is exactly one name token, ignoring
// trailing punctuation.
func bareToken(answer string) (string, bool) {
	v := strings.TrimRight(strings.TrimSpace(answer), ".!")
	if !singleToken.MatchString(v) {
		return "", false
	}
	return v, true
}

// slotFields maps the schema location of each askable slot to its question,
// in asking order.
var slotFields = []struct {
	field    string
	question string
}{
	{"/name", QuestionName},
	{"/location", QuestionLocation},
	{"/parameters/" + resource.ParamVMType, QuestionVMType},
	{"/parameters/" + resource.ParamAdminUsername, QuestionUsername},
	{"/parameters/" + resource.ParamRuntime, QuestionRuntime},
}

// Reopen clears the slots behind the given schema fields and returns their
// questions in asking order. ok is false when a field is not an askable
// slot; req is then left untouched.
func Reopen(req *resource.Request, fields []string) (questions []string, ok bool) {
	if len(fields) == 0 {
		return nil, false
	}
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}
	for _, sf := range slotFields {
		if want[sf.field] {
			questions = append(questions, sf.question)
			delete(want, sf.field)
		}
	}
	if len(want) > 0 {
		return nil, false
	}
	for _, q := range questions {
		switch slot := questionSlots[q]; slot {
		case SlotName:
			req.Name = ""
		case SlotLocation:
			req.Location = ""
		default:
			delete(req.Parameters, string(slot))
		}
	}
	return questions, true
}
