// Package config loads the bloodcheck configuration.
//
// Configuration comes from three layers, later ones winning: DefaultConfig,
// an optional YAML file (unknown keys are rejected) and BLOODCHECK_*
// environment variables. The result is checked against an embedded CUE
// schema before use, so a bad file fails at startup rather than halfway
// through a run.
//
// Example file:
//
//	neo4j:
//	  uri: bolt://localhost:7687
//	  username: neo4j
//	  password: bloodhound
//	  conf_path: /etc/neo4j
//	  data_path: /var/lib/neo4j/data
//	  instance_type: local
//	output:
//	  directory: ./reports
package config
