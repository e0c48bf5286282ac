// Package whatsapp is a minimal WhatsApp Cloud API client: it sends template
// messages and decodes the webhook payloads Meta posts back.
package whatsapp

import "strconv"

// Parameter is one substitution inside a template component.
type Parameter struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Component is a header, body or button block of a template message.
type Component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      string      `json:"index,omitempty"`
	Parameters []Parameter `json:"parameters"`
}

// Header builds a header component with text parameters.
func Header(texts ...string) Component {
	return Component{Type: "header", Parameters: textParams(texts)}
}

// Body builds a body component with text parameters.
func Body(texts ...string) Component {
	return Component{Type: "body", Parameters: textParams(texts)}
}

// QuickReply builds the button component at index whose click posts payload
// back through the webhook.
func QuickReply(index int, payload string) Component {
	return Component{
		Type:       "button",
		SubType:    "quick_reply",
		Index:      strconv.Itoa(index),
		Parameters: []Parameter{{Type: "payload", Payload: payload}},
	}
}

func textParams(texts []string) []Parameter {
	out := make([]Parameter, 0, len(texts))
	for _, t := range texts {
		out = append(out, Parameter{Type: "text", Text: t})
	}
	return out
}

type language struct {
	Code string `json:"code"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

type messageRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         template `json:"template"`
}

// SendResponse is the Cloud API reply to a send request.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns messages[0].id, or "" when the response carries none.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// WebhookPayload is the body Meta posts to the webhook endpoint.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []InboundMessage `json:"messages"`
}

// InboundMessage is a message an approver sent to the business number.
type InboundMessage struct {
	ID          string          `json:"id"`
	From        string          `json:"from"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Text        *Text           `json:"text,omitempty"`
	Button      *Button         `json:"button,omitempty"`
	Interactive *Interactive    `json:"interactive,omitempty"`
	Context     *MessageContext `json:"context,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

// Button is a quick-reply click on a template message.
type Button struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// Interactive is a reply to an interactive (non-template) message.
type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
}

// MessageContext references the outbound message being replied to.
type MessageContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// Messages flattens every inbound message across entries and changes.
func (p *WebhookPayload) Messages() []InboundMessage {
	var out []InboundMessage
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			out = append(out, c.Value.Messages...)
		}
	}
	return out
}
