// Package query turns a search intent into a Gmail search filter.
//
// The builder is pure string composition: it combines a raw predicate or a
// keyword disjunction with attachment scoping and recency clauses such as
// newer_than:30d. It never touches the network.
//
// Example usage:
//
//	opts := query.DefaultOptions()
//	opts.Window = query.TimeWindow{Amount: 30, Unit: query.Days}
//	filter := query.Build(opts)
//	// has:attachment (invoice OR receipt OR ...) newer_than:30d
package query
