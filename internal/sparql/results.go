package sparql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aescanero/dago-node-triplestore/internal/rdfstore"
)

// Content types of serialized results
const (
	ContentTypeResultsJSON = "application/sparql-results+json"
	ContentTypeNTriples    = "application/n-triples"
)

// Result is the outcome of a query. Which fields are set depends on Form.
type Result struct {
	Form Form

	// SELECT
	Variables []string
	Solutions []Solution

	// ASK
	Boolean bool

	// CONSTRUCT and DESCRIBE
	Triples []rdfstore.Triple
}

// ContentType returns the content type Serialize produces for r
func (r *Result) ContentType() string {
	switch r.Form {
	case FormConstruct, FormDescribe:
		return ContentTypeNTriples
	default:
		return ContentTypeResultsJSON
	}
}

// Serialize renders r and returns the payload with its content type
func (r *Result) Serialize() (string, string, error) {
	switch r.Form {
	case FormSelect:
		payload, err := r.selectJSON()
		return payload, ContentTypeResultsJSON, err
	case FormAsk:
		payload, err := marshal(askResults{Head: struct{}{}, Boolean: r.Boolean})
		return payload, ContentTypeResultsJSON, err
	case FormConstruct, FormDescribe:
		return NTriples(r.Triples), ContentTypeNTriples, nil
	}
	return "", "", fmt.Errorf("unknown result form %s", r.Form)
}

type selectResults struct {
	Head    selectHead     `json:"head"`
	Results selectBindings `json:"results"`
}

type selectHead struct {
	Vars []string `json:"vars"`
}

type selectBindings struct {
	Bindings []map[string]jsonTerm `json:"bindings"`
}

type askResults struct {
	Head    struct{} `json:"head"`
	Boolean bool     `json:"boolean"`
}

type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

func toJSONTerm(t rdfstore.Term) jsonTerm {
	switch t.Kind {
	case rdfstore.KindIRI:
		return jsonTerm{Type: "uri", Value: t.Value}
	case rdfstore.KindBlank:
		return jsonTerm{Type: "bnode", Value: t.Value}
	default:
		return jsonTerm{Type: "literal", Value: t.Value, Lang: t.Lang, Datatype: t.Datatype}
	}
}

func (r *Result) selectJSON() (string, error) {
	vars := r.Variables
	if vars == nil {
		vars = []string{}
	}
	out := selectResults{
		Head:    selectHead{Vars: vars},
		Results: selectBindings{Bindings: make([]map[string]jsonTerm, 0, len(r.Solutions))},
	}
	for _, sol := range r.Solutions {
		row := make(map[string]jsonTerm, len(sol))
		for name, t := range sol {
			row[name] = toJSONTerm(t)
		}
		out.Results.Bindings = append(out.Results.Bindings, row)
	}
	return marshal(out)
}

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	return string(data), nil
}

// NTriples renders triples one per line
func NTriples(triples []rdfstore.Triple) string {
	var b strings.Builder
	for _, t := range triples {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	return b.String()
}
