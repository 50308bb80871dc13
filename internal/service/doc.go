// Package service controls the local Neo4j service.
//
// Controller is the capability used by the lifecycle manager and the query
// commands: query the service state, restart it so that a new active
// database is served, and hand a freshly extracted database tree over to
// the service account. System implements it with the platform's service
// tooling (service(8) on Linux, sc/net on Windows) through a Runner, so
// tests drive it with FakeRunner instead of real processes.
package service
