// Package message defines the channel-neutral reply the engine produces.
// Channel adapters decide how actions and attachments are rendered.
package message

// Action is a reply the user can pick instead of typing it.
type Action struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Field is one labelled value inside an Attachment.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attachment is a titled summary card, e.g. the request under confirmation.
type Attachment struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields,omitempty"`
}

// Message is one bot utterance.
type Message struct {
	Text             string       `json:"text"`
	SuggestedActions []Action     `json:"suggested_actions,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	// IsTyping asks the channel to show a typing indicator before or instead
	// of the text.
	IsTyping bool `json:"is_typing,omitempty"`
}

// Text builds a plain message.
func Text(s string) Message {
	return Message{Text: s}
}

// YesNo returns the confirmation actions offered with every confirmation prompt.
func YesNo() []Action {
	return []Action{
		{Label: "Yes", Value: "yes"},
		{Label: "No", Value: "no"},
	}
}
