// Package idgen centralises unique identifier generation so that tests can
// substitute a deterministic source.
package idgen
