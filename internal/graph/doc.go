// Package graph is the boundary to the graph database.
//
// Session is the single capability through which queries and annotations
// reach Neo4j. One session is opened per invocation, shared by every stage
// of the run and closed when the run ends. Neo4jSession implements it over
// Bolt; tests substitute testutil.FakeSession.
//
// Executor runs one query against a session and isolates its failure: an
// error is logged and returned as an *ExecutionError so that a batch can skip
// the query and continue.
package graph
