// Package query builds the SQL statements issued against clinical sources
// from a declarative Spec. Identifiers are always quoted as identifiers and
// every data derived value goes through the dialect's literal rendering.
package query
