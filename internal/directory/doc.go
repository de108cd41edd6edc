// Package directory implements the in-memory key directory: one public
// key record per address, answering single and batch lookups for the
// REST surface.
package directory
