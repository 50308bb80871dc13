// Package querydef loads query definitions from YAML files.
//
// A query definition is a small YAML document:
//
//	Description: Domains available
//	Headers:
//	  - Domain
//	Query: |
//	  MATCH (n:Domain) RETURN n.name AS Domain
//
// Description labels the query in logs and names its report file.
// Headers lists the result columns in output order; each header must match a
// field name returned by the query. Query is the Cypher statement itself.
//
// Definitions that fail to load are reported and skipped; a bad file never
// aborts loading of the rest of a directory.
package querydef
