// Package query parses request targets and urlencoded form bodies into
// parameter maps where array-marked keys (name[]) hold lists.
package query
