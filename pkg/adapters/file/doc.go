// Package file stores snapshots as JSON files on the local filesystem.
package file
