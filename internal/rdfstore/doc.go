// Package rdfstore implements the in-memory quad store owned by a store worker.
//
// Each graph keeps its triples in three permutation indexes (SPO, POS, OSP)
// keyed by comparable Term values, so every triple pattern is answered from
// the index that binds its leftmost constant.
//
// Example usage:
//
//	store := rdfstore.New()
//	n, err := store.Load(content, rdfstore.LoadOptions{
//	    Format: rdfstore.FormatTurtle,
//	    Graph:  rdfstore.NewIRI("http://example.org/g1"),
//	})
//
//	store.Match(rdfstore.NewIRI("http://example.org/g1"), rdfstore.Term{}, rdfstore.Term{}, rdfstore.Term{},
//	    func(t rdfstore.Triple) bool {
//	        fmt.Println(t)
//	        return true
//	    })
//
// A Store is not safe for concurrent use.
package rdfstore
