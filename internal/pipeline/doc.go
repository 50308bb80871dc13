// Package pipeline runs batches of query definitions against one session.
//
// A RunContext is built once per invocation and carries everything the
// stages share: the run id and timestamp, the session, whether results are
// saved, the report writer, the journal, the publisher, the tracer and the
// operator output. Runner.Run executes the definitions strictly in order and
// returns one Outcome per definition; nothing is accumulated in shared
// state. Runner.Finish turns the outcomes into the end-of-run artifacts:
// the merged spreadsheet and, when configured, uploaded copies.
//
// A query that fails to execute is reported and skipped. A query that
// returns no rows is not a failure; it simply produces no report file.
package pipeline
