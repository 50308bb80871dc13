// Package testutil provides deterministic fakes shared by package tests:
// a scripted graph session, a fixed clock and fixed identifier generators.
package testutil
