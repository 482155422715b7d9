// Package template renders the log events a store worker sends to its
// supervisor from Handlebars templates.
//
// Example usage:
//
//	messages, err := template.NewMessages(template.NewEngine(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	text := messages.Format(template.MsgDataAcquired, map[string]interface{}{
//	    "size":   2048,
//	    "source": "data.ttl",
//	})
//	// Output: Loaded 2048 bytes of data from data.ttl
//
// Built-in helpers:
//   - uppercase - Convert string to uppercase
//   - lowercase - Convert string to lowercase
//   - default - Return default value if first arg is empty
//   - plural - Pick the singular or plural word for a count
package template
