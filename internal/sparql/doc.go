// Package sparql parses and evaluates the query subset answered by a store
// worker.
//
// Supported: SELECT, ASK, CONSTRUCT and DESCRIBE forms; BASE and PREFIX;
// FROM and FROM NAMED; basic graph patterns, nested groups, OPTIONAL, UNION,
// GRAPH and FILTER; ORDER BY, LIMIT and OFFSET. Update operations are
// rejected.
//
// FILTER constraints are translated into CEL expressions when the query is
// parsed and evaluated per solution by the cel package. Each solution is
// exposed to CEL as five maps keyed by variable name:
//
//	v  comparable value (double for numerics, bool, "<iri>", "_:b" or lexical form)
//	s  lexical form
//	k  term kind: "uri", "bnode" or "literal"
//	l  language tag of literals
//	d  datatype IRI of literals
//
// An expression that fails to evaluate, for example because a variable is
// unbound, rejects the solution.
//
// Example usage:
//
//	engine := sparql.NewEngine(store, sparql.Options{UnionDefaultGraph: true})
//
//	result, err := engine.Query(ctx, `SELECT ?name WHERE { ?p <http://xmlns.com/foaf/0.1/name> ?name }`)
//	if err != nil {
//	    var qerr *sparql.QueryError
//	    if errors.As(err, &qerr) {
//	        log.Printf("%s: %s", qerr.Kind, qerr.Message)
//	    }
//	    return err
//	}
//
//	payload, contentType, err := result.Serialize()
package sparql
