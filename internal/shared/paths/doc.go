// Package paths provides the logical path model of the virtual file system.
//
// A Path is an immutable sequence of name segments. The root is the empty
// sequence and renders as "/". Segments are never empty, never contain a
// separator and are never "." or "..", so a Path can always be joined onto
// a real directory without escaping it.
//
// # Usage
//
//	import "github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
//
//	p, err := paths.Parse("/docs/report.txt")
//	if err != nil {
//	    return err
//	}
//	p.Name()             // "report.txt"
//	p.Parent().String()  // "/docs"
//
//	child := paths.Root.NewPath("docs", "a/b")  // /docs/a/b
//	rel, _ := child.SubPath(p.Parent())         // /a/b
package paths
