// Package cel provides a CEL (Common Expression Language) evaluator used to
// run query FILTER conditions.
//
// CEL is a non-Turing complete expression language that provides fast, safe
// evaluation of conditions. Compiled programs are cached by expression text,
// so a FILTER evaluated once per solution is only compiled once.
//
// Example usage:
//
//	evaluator := cel.NewEvaluator("v")
//
//	vars := map[string]interface{}{
//	    "v": map[string]interface{}{
//	        "age":  42.0,
//	        "name": "Alice",
//	    },
//	}
//
//	matched, err := evaluator.EvaluateBool(ctx, `v["age"] > 30.0 && v["name"].startsWith("A")`, vars)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Supported operations:
//   - Comparisons: ==, !=, <, <=, >, >=
//   - Boolean logic: &&, ||, !
//   - String operations: contains, startsWith, endsWith, matches, lowerAscii, upperAscii
//   - Arithmetic: +, -, *, /
//   - Map access and presence: v["x"], "x" in v
package cel
