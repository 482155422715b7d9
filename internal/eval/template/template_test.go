package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Helpers(t *testing.T) {
	e := NewEngine()
	// a second engine must not register the helpers again
	_ = NewEngine()

	out, err := e.Render(`{{uppercase name}} {{default missing "n/a"}} {{n}} {{plural n "byte" "bytes"}}`, map[string]interface{}{
		"name": "store",
		"n":    1536,
	})
	require.NoError(t, err)
	assert.Equal(t, "STORE n/a 1536 bytes", out)
	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestRender_InvalidTemplate(t *testing.T) {
	e := NewEngine()
	_, err := e.Render("{{#if}}", nil)
	assert.Error(t, err)
	assert.Error(t, e.ValidateTemplate("{{#each items}}"))
}

func TestMessages_Format(t *testing.T) {
	m, err := NewMessages(NewEngine(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Created store", m.Format(MsgStoreCreated, nil))
	assert.Equal(t, "Loaded 2048 bytes of data from https://example.org/a?x=1&y=2",
		m.Format(MsgDataAcquired, map[string]interface{}{"size": 2048, "source": "https://example.org/a?x=1&y=2"}))
	assert.Equal(t, "Loaded 1 byte of data from a.nt",
		m.Format(MsgDataAcquired, map[string]interface{}{"size": 1, "source": "a.nt"}))
	assert.Equal(t, "Loaded data into store: 1 statement in graph <http://example.org/g1>",
		m.Format(MsgDataLoaded, map[string]interface{}{"quads": 1, "graph": "http://example.org/g1"}))
	assert.Equal(t, "Loaded data into store: 3 statements in the default graph",
		m.Format(MsgDataLoaded, map[string]interface{}{"quads": 3, "graph": ""}))
	assert.Equal(t, "Ignoring config for data.ttl: store is ready",
		m.Format(MsgConfigRejected, map[string]interface{}{"source": "data.ttl", "state": "READY"}))
	assert.Equal(t, "Answering 2 queries received before ready",
		m.Format(MsgPendingFlushed, map[string]interface{}{"count": 2}))
}

func TestMessages_Overrides(t *testing.T) {
	m, err := NewMessages(NewEngine(), map[Message]string{MsgStoreCreated: "Store {{id}} ready for data"})
	require.NoError(t, err)
	assert.Equal(t, "Store w1 ready for data", m.Format(MsgStoreCreated, map[string]interface{}{"id": "w1"}))

	// unknown messages render as their name
	assert.Equal(t, "no_such_message", m.Format(Message("no_such_message"), nil))

	_, err = NewMessages(NewEngine(), map[Message]string{MsgLoadFailed: "{{#if error}}"})
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, MsgLoadFailed, terr.Message)
}
