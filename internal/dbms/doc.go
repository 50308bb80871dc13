// Package dbms manages the Neo4j database instances of a local installation.
//
// Every immediate subdirectory of the database root is an instance, except
// the reserved default graph.db. The instance Neo4j serves is named by the
// dbms.active_database line of neo4j.conf; Manager reads and rewrites that
// line while leaving every other byte of the file untouched.
//
// Manager implements the interactive lifecycle: list, generate from the
// bundled template archive, switch, purge and restart. User-supplied names
// go through ValidateName, which rejects anything that would not resolve
// to a direct child of the root.
package dbms
