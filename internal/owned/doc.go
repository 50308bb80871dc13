// Package owned marks graph nodes as compromised principals.
//
// An owned file lists one principal per line as NAME or NAME;WAVE. Names
// are matched case-insensitively by upper-casing them, since the collector
// stores principal names in upper case; the wave label is upper-cased too.
// Annotator applies (Inject) or clears (Undo) the owned flag and wave of
// each listed node, and Wipe clears them on every node at once.
package owned
