package sparql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dago-node-triplestore/internal/rdfstore"
)

func TestSerialize_SelectTerms(t *testing.T) {
	res := &Result{
		Form:      FormSelect,
		Variables: []string{"s", "label", "n", "opt"},
		Solutions: []Solution{
			{
				"s":     rdfstore.NewIRI("http://example.org/a"),
				"label": rdfstore.NewLangLiteral("hello", "en"),
				"n":     rdfstore.NewTypedLiteral("3", rdfstore.XSDInteger),
			},
			{
				"s":     rdfstore.NewBlank("b0"),
				"label": rdfstore.NewLiteral("plain"),
			},
		},
	}

	payload, contentType, err := res.Serialize()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeResultsJSON, contentType)
	assert.JSONEq(t, `{
		"head": {"vars": ["s", "label", "n", "opt"]},
		"results": {"bindings": [
			{
				"s": {"type": "uri", "value": "http://example.org/a"},
				"label": {"type": "literal", "value": "hello", "xml:lang": "en"},
				"n": {"type": "literal", "value": "3", "datatype": "http://www.w3.org/2001/XMLSchema#integer"}
			},
			{
				"s": {"type": "bnode", "value": "b0"},
				"label": {"type": "literal", "value": "plain"}
			}
		]}
	}`, payload)
}

func TestSerialize_Ask(t *testing.T) {
	payload, contentType, err := (&Result{Form: FormAsk, Boolean: true}).Serialize()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeResultsJSON, contentType)
	assert.Equal(t, `{"head":{},"boolean":true}`, payload)
}

func TestSerialize_Graph(t *testing.T) {
	res := &Result{
		Form: FormConstruct,
		Triples: []rdfstore.Triple{
			{
				Subject:   rdfstore.NewIRI("http://example.org/a"),
				Predicate: rdfstore.NewIRI("http://example.org/p"),
				Object:    rdfstore.NewLangLiteral("say \"hi\"", "en"),
			},
			{
				Subject:   rdfstore.NewBlank("b1"),
				Predicate: rdfstore.NewIRI("http://example.org/p"),
				Object:    rdfstore.NewTypedLiteral("1.5", rdfstore.XSDDecimal),
			},
		},
	}

	payload, contentType, err := res.Serialize()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeNTriples, contentType)
	assert.Equal(t,
		"<http://example.org/a> <http://example.org/p> \"say \\\"hi\\\"\"@en .\n"+
			"_:b1 <http://example.org/p> \"1.5\"^^<http://www.w3.org/2001/XMLSchema#decimal> .\n",
		payload)

	empty, contentType, err := (&Result{Form: FormDescribe}).Serialize()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeNTriples, contentType)
	assert.Empty(t, empty)
}
