// Package version resolves the project version from its metadata document
// and derives the name of the branch the fork is synchronised into.
package version
