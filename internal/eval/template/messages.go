package template

// Message identifies a log event sent to the supervisor
type Message string

const (
	MsgStoreCreated   Message = "store_created"
	MsgDataAcquired   Message = "data_acquired"
	MsgDataLoaded     Message = "data_loaded"
	MsgLoadFailed     Message = "load_failed"
	MsgConfigRejected Message = "config_rejected"
	MsgPendingFlushed Message = "pending_flushed"
	MsgPendingFailed  Message = "pending_failed"
	MsgInvalidMessage Message = "invalid_message"
)

// DefaultMessages are the texts of every Message. Values use triple-stash so
// they are not HTML-escaped.
var DefaultMessages = map[Message]string{
	MsgStoreCreated:   "Created store",
	MsgDataAcquired:   "Loaded {{size}} {{plural size \"byte\" \"bytes\"}} of data from {{{source}}}",
	MsgDataLoaded:     "Loaded data into store: {{quads}} {{plural quads \"statement\" \"statements\"}} in {{#if graph}}graph <{{{graph}}}>{{else}}the default graph{{/if}}",
	MsgLoadFailed:     "Failed to load {{{source}}}: {{{error}}}",
	MsgConfigRejected: "Ignoring config for {{{source}}}: store is {{lowercase state}}",
	MsgPendingFlushed: "Answering {{count}} {{plural count \"query\" \"queries\"}} received before ready",
	MsgPendingFailed:  "Failing {{count}} {{plural count \"query\" \"queries\"}} received before the failed load",
	MsgInvalidMessage: "Dropped invalid message: {{{error}}}",
}

// Messages renders log events from a set of templates
type Messages struct {
	engine    *Engine
	templates map[Message]string
}

// NewMessages creates a renderer for DefaultMessages. Entries in overrides
// replace the default text of a message.
func NewMessages(engine *Engine, overrides map[Message]string) (*Messages, error) {
	templates := make(map[Message]string, len(DefaultMessages))
	for msg, text := range DefaultMessages {
		templates[msg] = text
	}
	for msg, text := range overrides {
		templates[msg] = text
	}

	for msg, text := range templates {
		if err := engine.ValidateTemplate(text); err != nil {
			return nil, &Error{Message: msg, Err: err}
		}
	}

	return &Messages{engine: engine, templates: templates}, nil
}

// Format renders msg. A message that fails to render falls back to its name,
// so a log event is always produced.
func (m *Messages) Format(msg Message, data map[string]interface{}) string {
	text, ok := m.templates[msg]
	if !ok {
		return string(msg)
	}
	out, err := m.engine.Render(text, data)
	if err != nil {
		return string(msg)
	}
	return out
}
