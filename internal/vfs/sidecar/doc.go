// Package sidecar lays out per-path side files (properties, locks) in a
// directory tree that mirrors the logical tree.
//
// For a Layout with suffix ".props":
//
//	/              -> /.props
//	/a             -> /a.props
//	/a/b           -> /a.d/b.props
//	descendants of /a/b live under /a.d/b.d/
//
// The ".d" suffix on mirror directories keeps a folder's subtree from
// colliding with the side file of a sibling whose name ends in the sidecar
// suffix. Moving, copying or removing a logical subtree is therefore one
// rename, copy or removal of a side file plus one mirror directory.
package sidecar
