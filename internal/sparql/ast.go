package sparql

import "github.com/aescanero/dago-node-triplestore/internal/rdfstore"

// Form is the result form of a query
type Form int

const (
	FormSelect Form = iota + 1
	FormAsk
	FormConstruct
	FormDescribe
)

func (f Form) String() string {
	switch f {
	case FormSelect:
		return "SELECT"
	case FormAsk:
		return "ASK"
	case FormConstruct:
		return "CONSTRUCT"
	case FormDescribe:
		return "DESCRIBE"
	default:
		return "UNKNOWN"
	}
}

// blankVarPrefix marks variables introduced for blank nodes in patterns.
// ':' never occurs in a variable name, so they cannot clash or be projected.
const blankVarPrefix = "_:"

// Node is a pattern position: either a variable or a constant term
type Node struct {
	Var  string
	Term rdfstore.Term
}

// IsVar reports whether n is a variable
func (n Node) IsVar() bool {
	return n.Var != ""
}

// TriplePattern is a triple whose positions may be variables
type TriplePattern struct {
	Subject   Node
	Predicate Node
	Object    Node
}

// Query is a parsed query
type Query struct {
	Form     Form
	Distinct bool
	// Projection lists the selected variables; nil means '*'
	Projection []string
	// Construct is the template of a CONSTRUCT query
	Construct []TriplePattern
	// Describe lists the resources of a DESCRIBE query; nil means '*'
	Describe  []Node
	From      []rdfstore.Term
	FromNamed []rdfstore.Term
	Where     *GroupPattern
	OrderBy   []OrderCondition
	// Limit is -1 when absent
	Limit  int
	Offset int

	// visible holds the in-scope variables in order of appearance
	visible []string
}

// Variables returns the variables of the result table: the projection, or
// every visible variable for '*'
func (q *Query) Variables() []string {
	if q.Projection != nil {
		return q.Projection
	}
	return q.visible
}

// OrderCondition sorts solutions by one variable
type OrderCondition struct {
	Var        string
	Descending bool
}

// Element is a member of a group graph pattern
type Element interface {
	element()
}

// GroupPattern is a '{ ... }' block; filters apply to the whole group
type GroupPattern struct {
	Elements []Element
	Filters  []*Filter
}

// BasicPattern is a run of consecutive triple patterns
type BasicPattern struct {
	Triples []TriplePattern
}

// OptionalPattern is an OPTIONAL block
type OptionalPattern struct {
	Group *GroupPattern
}

// UnionPattern is a chain of groups joined by UNION
type UnionPattern struct {
	Alternatives []*GroupPattern
}

// GraphPattern scopes a group to a named graph
type GraphPattern struct {
	Name  Node
	Group *GroupPattern
}

// Filter is a FILTER constraint translated into a CEL expression
type Filter struct {
	// Source is the original constraint text
	Source string
	// Expression is the CEL program evaluated for each solution
	Expression string
}

func (*GroupPattern) element()    {}
func (*BasicPattern) element()    {}
func (*OptionalPattern) element() {}
func (*UnionPattern) element()    {}
func (*GraphPattern) element()    {}
