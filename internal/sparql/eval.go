package sparql

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aescanero/dago-node-triplestore/internal/eval/cel"
	"github.com/aescanero/dago-node-triplestore/internal/rdfstore"
)

// ctxCheckInterval is the number of evaluation steps between context checks
const ctxCheckInterval = 1024

// Solution maps variable names to bound terms
type Solution map[string]rdfstore.Term

func (s Solution) extend(name string, t rdfstore.Term) Solution {
	out := make(Solution, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = t
	return out
}

// Options configures an Engine
type Options struct {
	// UnionDefaultGraph makes the default graph of a query the union of the
	// default graph and every named graph
	UnionDefaultGraph bool
}

// Engine evaluates queries against a store. It is not safe for concurrent
// use; the store must not be modified while a query runs.
type Engine struct {
	store   *rdfstore.Store
	opts    Options
	filters *cel.Evaluator
}

// NewEngine creates an engine over store
func NewEngine(store *rdfstore.Store, opts Options) *Engine {
	return &Engine{
		store:   store,
		opts:    opts,
		filters: cel.NewEvaluator(filterVariables...),
	}
}

// Prepare parses a query and compiles its filters
func (e *Engine) Prepare(query string) (*Query, error) {
	q, err := Parse(query)
	if err != nil {
		return nil, err
	}
	if q.Where != nil {
		if err := e.compileFilters(q.Where); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (e *Engine) compileFilters(g *GroupPattern) error {
	for _, f := range g.Filters {
		if err := e.filters.ValidateExpression(f.Expression); err != nil {
			return &QueryError{Kind: KindSyntax, Offset: -1, Message: fmt.Sprintf("invalid FILTER %s", f.Source), Err: err}
		}
	}
	for _, el := range g.Elements {
		var groups []*GroupPattern
		switch el := el.(type) {
		case *GroupPattern:
			groups = append(groups, el)
		case *OptionalPattern:
			groups = append(groups, el.Group)
		case *GraphPattern:
			groups = append(groups, el.Group)
		case *UnionPattern:
			groups = append(groups, el.Alternatives...)
		}
		for _, sub := range groups {
			if err := e.compileFilters(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// Query parses and executes a query
func (e *Engine) Query(ctx context.Context, query string) (*Result, error) {
	q, err := e.Prepare(query)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, q)
}

// Execute evaluates a prepared query
func (e *Engine) Execute(ctx context.Context, q *Query) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	ev := &evaluation{ctx: ctx, engine: e}
	ev.active, ev.named = e.dataset(q)

	sols := []Solution{{}}
	if q.Where != nil {
		var err error
		if sols, err = ev.group(q.Where, sols); err != nil {
			return nil, err
		}
	}

	res := &Result{Form: q.Form}
	switch q.Form {
	case FormAsk:
		res.Boolean = len(sols) > 0
	case FormSelect:
		res.Variables = q.Variables()
		res.Solutions = ev.modify(q, sols)
	case FormConstruct:
		res.Triples = construct(q.Construct, ev.modify(q, sols))
	case FormDescribe:
		triples, err := ev.describe(q, ev.modify(q, sols))
		if err != nil {
			return nil, err
		}
		res.Triples = triples
	}
	return res, nil
}

// dataset returns the graphs forming the default graph and the named graphs
// visible to GRAPH
func (e *Engine) dataset(q *Query) (active, named []rdfstore.Term) {
	if len(q.From) > 0 {
		return uniqueTerms(q.From), uniqueTerms(q.FromNamed)
	}

	active = []rdfstore.Term{rdfstore.DefaultGraph}
	if e.opts.UnionDefaultGraph {
		active = append(active, e.store.GraphNames()...)
	}
	if len(q.FromNamed) > 0 {
		return active, uniqueTerms(q.FromNamed)
	}
	return active, e.store.GraphNames()
}

func uniqueTerms(terms []rdfstore.Term) []rdfstore.Term {
	seen := make(map[rdfstore.Term]bool, len(terms))
	out := make([]rdfstore.Term, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type evaluation struct {
	ctx    context.Context
	engine *Engine
	steps  int

	// active are the graphs triple patterns are matched against
	active []rdfstore.Term
	named  []rdfstore.Term
}

func (ev *evaluation) tick() error {
	ev.steps++
	if ev.steps%ctxCheckInterval != 0 {
		return nil
	}
	if err := ev.ctx.Err(); err != nil {
		return contextError(err)
	}
	return nil
}

// group evaluates g once for each input solution
func (ev *evaluation) group(g *GroupPattern, input []Solution) ([]Solution, error) {
	sols := input
	var err error
	for _, el := range g.Elements {
		if len(sols) == 0 {
			return nil, nil
		}
		switch el := el.(type) {
		case *BasicPattern:
			sols, err = ev.basic(el.Triples, sols)
		case *GroupPattern:
			sols, err = ev.group(el, sols)
		case *OptionalPattern:
			sols, err = ev.optional(el.Group, sols)
		case *UnionPattern:
			sols, err = ev.union(el.Alternatives, sols)
		case *GraphPattern:
			sols, err = ev.graph(el, sols)
		default:
			err = &QueryError{Kind: KindEvaluation, Offset: -1, Message: fmt.Sprintf("unexpected pattern %T", el)}
		}
		if err != nil {
			return nil, err
		}
	}
	if len(g.Filters) == 0 {
		return sols, nil
	}
	return ev.filter(g.Filters, sols)
}

func (ev *evaluation) optional(g *GroupPattern, input []Solution) ([]Solution, error) {
	var out []Solution
	for _, sol := range input {
		ext, err := ev.group(g, []Solution{sol})
		if err != nil {
			return nil, err
		}
		if len(ext) == 0 {
			out = append(out, sol)
			continue
		}
		out = append(out, ext...)
	}
	return out, nil
}

func (ev *evaluation) union(alternatives []*GroupPattern, input []Solution) ([]Solution, error) {
	var out []Solution
	for _, alt := range alternatives {
		sols, err := ev.group(alt, input)
		if err != nil {
			return nil, err
		}
		out = append(out, sols...)
	}
	return out, nil
}

func (ev *evaluation) graph(gp *GraphPattern, input []Solution) ([]Solution, error) {
	saved := ev.active
	defer func() { ev.active = saved }()

	isNamed := make(map[rdfstore.Term]bool, len(ev.named))
	for _, n := range ev.named {
		isNamed[n] = true
	}

	if !gp.Name.IsVar() {
		if !isNamed[gp.Name.Term] {
			return nil, nil
		}
		ev.active = []rdfstore.Term{gp.Name.Term}
		return ev.group(gp.Group, input)
	}

	var out []Solution
	for _, sol := range input {
		if bound, ok := sol[gp.Name.Var]; ok {
			if !isNamed[bound] {
				continue
			}
			ev.active = []rdfstore.Term{bound}
			sols, err := ev.group(gp.Group, []Solution{sol})
			if err != nil {
				return nil, err
			}
			out = append(out, sols...)
			continue
		}
		for _, name := range ev.named {
			ev.active = []rdfstore.Term{name}
			sols, err := ev.group(gp.Group, []Solution{sol.extend(gp.Name.Var, name)})
			if err != nil {
				return nil, err
			}
			out = append(out, sols...)
		}
	}
	return out, nil
}

// basic joins a basic graph pattern into the input solutions, one triple
// pattern at a time
func (ev *evaluation) basic(patterns []TriplePattern, input []Solution) ([]Solution, error) {
	sols := input
	for _, tp := range patterns {
		var next []Solution
		for _, sol := range sols {
			matched, err := ev.match(tp, sol)
			if err != nil {
				return nil, err
			}
			next = append(next, matched...)
		}
		sols = next
		if len(sols) == 0 {
			return nil, nil
		}
	}
	return sols, nil
}

func resolveNode(n Node, sol Solution) rdfstore.Term {
	if !n.IsVar() {
		return n.Term
	}
	return sol[n.Var]
}

// bind extends sol with the variable of n bound to t; it reports false when
// the variable is already bound to another term
func bind(sol Solution, n Node, t rdfstore.Term) (Solution, bool) {
	if !n.IsVar() {
		return sol, true
	}
	if cur, ok := sol[n.Var]; ok {
		return sol, cur == t
	}
	return sol.extend(n.Var, t), true
}

// match returns the extensions of sol matching one triple pattern. Across
// several active graphs identical triples count once.
func (ev *evaluation) match(tp TriplePattern, sol Solution) ([]Solution, error) {
	subj := resolveNode(tp.Subject, sol)
	pred := resolveNode(tp.Predicate, sol)
	obj := resolveNode(tp.Object, sol)

	var seen map[rdfstore.Triple]bool
	if len(ev.active) > 1 {
		seen = make(map[rdfstore.Triple]bool)
	}

	var out []Solution
	var stepErr error
	for _, g := range ev.active {
		ev.engine.store.Match(g, subj, pred, obj, func(t rdfstore.Triple) bool {
			if stepErr = ev.tick(); stepErr != nil {
				return false
			}
			if seen != nil {
				if seen[t] {
					return true
				}
				seen[t] = true
			}
			ext, ok := bind(sol, tp.Subject, t.Subject)
			if !ok {
				return true
			}
			if ext, ok = bind(ext, tp.Predicate, t.Predicate); !ok {
				return true
			}
			if ext, ok = bind(ext, tp.Object, t.Object); !ok {
				return true
			}
			out = append(out, ext)
			return true
		})
		if stepErr != nil {
			return nil, stepErr
		}
	}
	return out, nil
}

// filter keeps the solutions for which every constraint is true. A
// constraint that fails to evaluate counts as false.
func (ev *evaluation) filter(filters []*Filter, input []Solution) ([]Solution, error) {
	out := input[:0:0]
	for _, sol := range input {
		if err := ev.tick(); err != nil {
			return nil, err
		}
		vars := filterBindings(sol)
		keep := true
		for _, f := range filters {
			ok, err := ev.engine.filters.EvaluateBool(ev.ctx, f.Expression, vars)
			if err != nil {
				if ctxErr := ev.ctx.Err(); ctxErr != nil {
					return nil, contextError(ctxErr)
				}
				ok = false
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, sol)
		}
	}
	return out, nil
}

// modify applies ORDER BY, projection, DISTINCT, OFFSET and LIMIT
func (ev *evaluation) modify(q *Query, sols []Solution) []Solution {
	if len(q.OrderBy) > 0 {
		sort.SliceStable(sols, func(i, j int) bool {
			for _, cond := range q.OrderBy {
				a, aok := sols[i][cond.Var]
				b, bok := sols[j][cond.Var]
				c := compareBindings(a, aok, b, bok)
				if c == 0 {
					continue
				}
				if cond.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Form == FormSelect {
		sols = project(sols, q.Variables())
		if q.Distinct {
			sols = distinct(sols, q.Variables())
		}
	}

	if q.Offset > 0 {
		if q.Offset >= len(sols) {
			return nil
		}
		sols = sols[q.Offset:]
	}
	if q.Limit >= 0 && q.Limit < len(sols) {
		sols = sols[:q.Limit]
	}
	return sols
}

func project(sols []Solution, vars []string) []Solution {
	out := make([]Solution, len(sols))
	for i, sol := range sols {
		p := make(Solution, len(vars))
		for _, v := range vars {
			if t, ok := sol[v]; ok {
				p[v] = t
			}
		}
		out[i] = p
	}
	return out
}

func distinct(sols []Solution, vars []string) []Solution {
	seen := make(map[string]bool, len(sols))
	out := sols[:0:0]
	for _, sol := range sols {
		var key strings.Builder
		for _, v := range vars {
			if t, ok := sol[v]; ok {
				key.WriteString(t.String())
			}
			key.WriteByte(0)
		}
		if seen[key.String()] {
			continue
		}
		seen[key.String()] = true
		out = append(out, sol)
	}
	return out
}

// termRank orders term kinds: unbound, blank nodes, IRIs, literals
func termRank(t rdfstore.Term, bound bool) int {
	if !bound {
		return 0
	}
	switch t.Kind {
	case rdfstore.KindBlank:
		return 1
	case rdfstore.KindIRI:
		return 2
	default:
		return 3
	}
}

func compareBindings(a rdfstore.Term, aok bool, b rdfstore.Term, bok bool) int {
	ra, rb := termRank(a, aok), termRank(b, bok)
	if ra != rb {
		return ra - rb
	}
	if ra == 0 {
		return 0
	}
	if fa, ok := a.Numeric(); ok {
		if fb, ok := b.Numeric(); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if c := strings.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	if c := strings.Compare(a.Lang, b.Lang); c != 0 {
		return c
	}
	return strings.Compare(a.Datatype, b.Datatype)
}

// construct instantiates the template once per solution. Blank nodes of
// the template are fresh for each solution; triples with unbound or
// invalid positions are skipped.
func construct(template []TriplePattern, sols []Solution) []rdfstore.Triple {
	seen := make(map[rdfstore.Triple]bool)
	var out []rdfstore.Triple
	for i, sol := range sols {
		instantiate := func(n Node) (rdfstore.Term, bool) {
			if n.IsVar() {
				t, ok := sol[n.Var]
				return t, ok
			}
			if n.Term.IsBlank() {
				return rdfstore.NewBlank("b" + strconv.Itoa(i) + "_" + n.Term.Value), true
			}
			return n.Term, true
		}
		for _, tp := range template {
			s, sok := instantiate(tp.Subject)
			p, pok := instantiate(tp.Predicate)
			o, ook := instantiate(tp.Object)
			if !sok || !pok || !ook || s.IsLiteral() || !p.IsIRI() {
				continue
			}
			t := rdfstore.Triple{Subject: s, Predicate: p, Object: o}
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// describe returns the triples of the default graph whose subject is one of
// the described resources
func (ev *evaluation) describe(q *Query, sols []Solution) ([]rdfstore.Triple, error) {
	var resources []rdfstore.Term
	seenRes := make(map[rdfstore.Term]bool)
	add := func(t rdfstore.Term) {
		if (t.IsIRI() || t.IsBlank()) && !seenRes[t] {
			seenRes[t] = true
			resources = append(resources, t)
		}
	}

	targets := q.Describe
	if targets == nil {
		for _, v := range q.Variables() {
			targets = append(targets, Node{Var: v})
		}
	}
	for _, n := range targets {
		if !n.IsVar() {
			add(n.Term)
			continue
		}
		for _, sol := range sols {
			if t, ok := sol[n.Var]; ok {
				add(t)
			}
		}
	}

	seen := make(map[rdfstore.Triple]bool)
	var out []rdfstore.Triple
	var stepErr error
	for _, res := range resources {
		for _, g := range ev.active {
			ev.engine.store.Match(g, res, rdfstore.Term{}, rdfstore.Term{}, func(t rdfstore.Triple) bool {
				if stepErr = ev.tick(); stepErr != nil {
					return false
				}
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
				return true
			})
			if stepErr != nil {
				return nil, stepErr
			}
		}
	}
	return out, nil
}
