// Command vfsctl operates on a local virtual file system from the shell.
//
// Usage:
//
//	vfsctl [-root dir] [-config file] [-log-level level] [-metrics] <command> [args]
//
// Commands cover listing (ls, tree, stat, cat), creation and updates (put,
// mkdir), transfers (cp, mv, rename, rm), locks (lock, unlock), properties
// (props, setprop), archives (zip, unzip, tar, untar), hashing (md5) and
// full-text search (search). The root defaults to VFS_ROOT.
package main
