// Package prompt asks the operator questions during interactive database
// operations.
//
// Prompter is injected into the lifecycle manager and the annotator so that
// they never read a terminal directly. Terminal prompts on a reader/writer
// pair and re-asks on malformed or out-of-range input until it gets a usable
// answer. Scripted answers from a fixed list and is used in tests.
//
// Both implementations return ErrAborted when no more input can arrive
// (end of input, interrupted context or an exhausted script). Callers treat
// an aborted prompt as a declined operation.
package prompt
