package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/archive"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/search"
)

type command struct {
	usage   string
	summary string
	run     func(e *env, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"ls":      {"[path]", "List the children of a folder", cmdList},
		"tree":    {"[path]", "Print every entry below a folder", cmdTree},
		"stat":    {"<path>", "Show the attributes of an entry", cmdStat},
		"cat":     {"<path>", "Write the content of a file to stdout", cmdCat},
		"put":     {"[-token t] <path> [local-file]", "Create or replace a file from stdin or a local file", cmdPut},
		"mkdir":   {"<path>", "Create a folder and its missing parents", cmdMkdir},
		"rm":      {"[-token t] <path>", "Delete a file or folder", cmdRemove},
		"cp":      {"[-overwrite] [-name n] <src> <dest-folder>", "Copy an entry into a folder", cmdCopy},
		"mv":      {"[-overwrite] [-name n] [-token t] <src> <dest-folder>", "Move an entry into a folder", cmdMove},
		"rename":  {"[-token t] <path> <name>", "Rename an entry in place", cmdRename},
		"lock":    {"[-timeout d] <path>", "Lock a file and print the token", cmdLock},
		"unlock":  {"<path> <token>", "Release a lock", cmdUnlock},
		"props":   {"<path>", "Print the properties of an entry", cmdProps},
		"setprop": {"<path> <name> [value]", "Set a property, or remove it when no value is given", cmdSetProp},
		"zip":     {"[-exclude globs] <folder> [archive]", "Write a folder as zip to stdout or a local file", archiveCmd(archive.FormatZip)},
		"tar":     {"[-exclude globs] <folder> [archive]", "Write a folder as tar to stdout or a local file", archiveCmd(archive.FormatTar)},
		"unzip":   {"[-overwrite] [-strip n] <folder> [archive]", "Extract a zip from stdin or a local file", extractCmd(archive.FormatZip)},
		"untar":   {"[-overwrite] [-strip n] <folder> [archive]", "Extract a tar from stdin or a local file", extractCmd(archive.FormatTar)},
		"md5":     {"<path>", "Print the md5 sum of every file below a path", cmdMd5},
		"search":  {"[-name glob] [-under path] [-max n] [-skip n] [terms...]", "Search file names and content", cmdSearch},
	}
}

// parseArgs parses command flags and checks the positional argument count
func parseArgs(e *env, name string, args []string, minArgs, maxArgs int, define func(*flag.FlagSet)) ([]string, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(e.stderr)
	if define != nil {
		define(flags)
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	rest := flags.Args()
	if len(rest) < minArgs || (maxArgs >= 0 && len(rest) > maxArgs) {
		return nil, fmt.Errorf("%w: %s %s", errUsage, name, commands[name].usage)
	}
	return rest, nil
}

// entry resolves a path that must exist
func (e *env) entry(s string) (*vfs.VirtualFile, error) {
	f, err := e.fs.Lookup(s)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &vfs.Error{Op: "lookup", Path: s, Kind: vfs.ErrNotFound, Msg: "no such file or folder"}
	}
	return f, nil
}

func (e *env) optionalEntry(args []string) (*vfs.VirtualFile, error) {
	if len(args) == 0 {
		return e.fs.Root(), nil
	}
	return e.entry(args[0])
}

func cmdList(e *env, args []string) error {
	args, err := parseArgs(e, "ls", args, 0, 1, nil)
	if err != nil {
		return err
	}
	folder, err := e.optionalEntry(args)
	if err != nil {
		return err
	}
	children, err := folder.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.IsFolder() {
			fmt.Fprintf(e.stdout, "d %10s %s/\n", "-", child.Name())
			continue
		}
		size, err := child.Length()
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "f %10d %s\n", size, child.Name())
	}
	return nil
}

func cmdTree(e *env, args []string) error {
	args, err := parseArgs(e, "tree", args, 0, 1, nil)
	if err != nil {
		return err
	}
	folder, err := e.optionalEntry(args)
	if err != nil {
		return err
	}
	depth := folder.Path().Len()
	return folder.Walk(func(f *vfs.VirtualFile) error {
		indent := strings.Repeat("  ", f.Path().Len()-depth)
		name := f.Name()
		if f.IsRoot() {
			name = "/"
		} else if f.IsFolder() {
			name += "/"
		}
		_, err := fmt.Fprintf(e.stdout, "%s%s\n", indent, name)
		return err
	})
}

func cmdStat(e *env, args []string) error {
	args, err := parseArgs(e, "stat", args, 1, 1, nil)
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	modified, err := f.LastModified()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "path:     %s\n", f.Path())
	fmt.Fprintf(e.stdout, "modified: %s\n", modified.Format(time.RFC3339))
	if f.IsFolder() {
		fmt.Fprintln(e.stdout, "kind:     folder")
		return nil
	}

	size, err := f.Length()
	if err != nil {
		return err
	}
	mediaType, err := f.MediaType()
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "kind:     file")
	fmt.Fprintf(e.stdout, "size:     %d\n", size)
	fmt.Fprintf(e.stdout, "type:     %s\n", mediaType)

	expiry, locked, err := f.LockExpiry()
	if err != nil {
		return err
	}
	switch {
	case !locked:
		fmt.Fprintln(e.stdout, "locked:   no")
	case expiry.IsZero():
		fmt.Fprintln(e.stdout, "locked:   yes")
	default:
		fmt.Fprintf(e.stdout, "locked:   until %s\n", expiry.Format(time.RFC3339))
	}
	return nil
}

func cmdCat(e *env, args []string) error {
	args, err := parseArgs(e, "cat", args, 1, 1, nil)
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	rc, err := f.Content()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(e.stdout, rc)
	return err
}

func cmdPut(e *env, args []string) error {
	var token string
	args, err := parseArgs(e, "put", args, 1, 2, func(fs *flag.FlagSet) {
		fs.StringVar(&token, "token", "", "Lock token of the file")
	})
	if err != nil {
		return err
	}
	target, err := paths.Parse(args[0])
	if err != nil {
		return err
	}
	if target.IsRoot() {
		return fmt.Errorf("%w: put needs a file path", errUsage)
	}

	in, closeIn, err := e.input(args[1:])
	if err != nil {
		return err
	}
	defer closeIn()

	existing, err := e.fs.Get(target)
	if err != nil {
		return err
	}
	if existing != nil {
		return existing.UpdateContent(in, token)
	}
	parent, err := e.entry(target.Parent().String())
	if err != nil {
		return err
	}
	_, err = parent.CreateFile(target.Name(), in)
	return err
}

func cmdMkdir(e *env, args []string) error {
	args, err := parseArgs(e, "mkdir", args, 1, 1, nil)
	if err != nil {
		return err
	}
	_, err = e.fs.Root().CreateFolder(args[0])
	return err
}

func cmdRemove(e *env, args []string) error {
	var token string
	args, err := parseArgs(e, "rm", args, 1, 1, func(fs *flag.FlagSet) {
		fs.StringVar(&token, "token", "", "Lock token of the entry")
	})
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	return f.Delete(token)
}

type transferFlags struct {
	overwrite bool
	name      string
	token     string
}

func (t *transferFlags) options() []vfs.TransferOption {
	opts := []vfs.TransferOption{vfs.WithOverwrite(t.overwrite)}
	if t.name != "" {
		opts = append(opts, vfs.WithName(t.name))
	}
	if t.token != "" {
		opts = append(opts, vfs.WithLockToken(t.token))
	}
	return opts
}

func cmdCopy(e *env, args []string) error {
	var t transferFlags
	args, err := parseArgs(e, "cp", args, 2, 2, func(fs *flag.FlagSet) {
		fs.BoolVar(&t.overwrite, "overwrite", false, "Replace an existing destination")
		fs.StringVar(&t.name, "name", "", "Name of the copy")
	})
	if err != nil {
		return err
	}
	return e.transfer(args, func(src, dest *vfs.VirtualFile) (*vfs.VirtualFile, error) {
		return src.CopyTo(dest, t.options()...)
	})
}

func cmdMove(e *env, args []string) error {
	var t transferFlags
	args, err := parseArgs(e, "mv", args, 2, 2, func(fs *flag.FlagSet) {
		fs.BoolVar(&t.overwrite, "overwrite", false, "Replace an existing destination")
		fs.StringVar(&t.name, "name", "", "Name at the destination")
		fs.StringVar(&t.token, "token", "", "Lock token of the source")
	})
	if err != nil {
		return err
	}
	return e.transfer(args, func(src, dest *vfs.VirtualFile) (*vfs.VirtualFile, error) {
		return src.MoveTo(dest, t.options()...)
	})
}

func (e *env) transfer(args []string, fn func(src, dest *vfs.VirtualFile) (*vfs.VirtualFile, error)) error {
	src, err := e.entry(args[0])
	if err != nil {
		return err
	}
	dest, err := e.entry(args[1])
	if err != nil {
		return err
	}
	result, err := fn(src, dest)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, result.Path())
	return nil
}

func cmdRename(e *env, args []string) error {
	var token string
	args, err := parseArgs(e, "rename", args, 2, 2, func(fs *flag.FlagSet) {
		fs.StringVar(&token, "token", "", "Lock token of the entry")
	})
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	renamed, err := f.Rename(args[1], token)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, renamed.Path())
	return nil
}

func cmdLock(e *env, args []string) error {
	var timeout time.Duration
	args, err := parseArgs(e, "lock", args, 1, 1, func(fs *flag.FlagSet) {
		fs.DurationVar(&timeout, "timeout", 0, "Lock lifetime; zero never expires")
	})
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	token, err := f.Lock(timeout)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, token)
	return nil
}

func cmdUnlock(e *env, args []string) error {
	args, err := parseArgs(e, "unlock", args, 2, 2, nil)
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	return f.Unlock(args[1])
}

func cmdProps(e *env, args []string) error {
	args, err := parseArgs(e, "props", args, 1, 1, nil)
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	props, err := f.Properties()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(e.stdout, "%s=%s\n", name, props[name])
	}
	return nil
}

func cmdSetProp(e *env, args []string) error {
	args, err := parseArgs(e, "setprop", args, 2, 3, nil)
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	var value *string
	if len(args) == 3 {
		value = &args[2]
	}
	return f.SetProperty(args[1], value)
}

func archiveCmd(format archive.Format) func(e *env, args []string) error {
	name := string(format)
	return func(e *env, args []string) error {
		var exclude string
		args, err := parseArgs(e, name, args, 1, 2, func(fs *flag.FlagSet) {
			fs.StringVar(&exclude, "exclude", "", "Comma separated globs of paths to leave out")
		})
		if err != nil {
			return err
		}
		var filter archive.Filter = archive.All
		if patterns := splitList(exclude); len(patterns) > 0 {
			if filter, err = archive.GlobFilter(patterns...); err != nil {
				return err
			}
		}
		folder, err := e.entry(args[0])
		if err != nil {
			return err
		}

		out := e.stdout
		if len(args) == 2 {
			file, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer file.Close()
			out = file
		}
		return folder.Compress(out, format, filter)
	}
}

func extractCmd(format archive.Format) func(e *env, args []string) error {
	name := "un" + string(format)
	return func(e *env, args []string) error {
		var overwrite bool
		var strip int
		args, err := parseArgs(e, name, args, 1, 2, func(fs *flag.FlagSet) {
			fs.BoolVar(&overwrite, "overwrite", false, "Replace existing entries")
			fs.IntVar(&strip, "strip", 0, "Leading path components to drop from every entry")
		})
		if err != nil {
			return err
		}
		folder, err := e.entry(args[0])
		if err != nil {
			return err
		}
		in, closeIn, err := e.input(args[1:])
		if err != nil {
			return err
		}
		defer closeIn()
		return folder.Extract(in, format, overwrite, strip)
	}
}

func cmdMd5(e *env, args []string) error {
	args, err := parseArgs(e, "md5", args, 1, 1, nil)
	if err != nil {
		return err
	}
	f, err := e.entry(args[0])
	if err != nil {
		return err
	}
	folder, only := f, ""
	if f.IsFile() {
		folder, only = f.Parent(), f.Name()
	}
	sums, err := folder.CountMd5Sums()
	if err != nil {
		return err
	}
	for _, sum := range sums {
		if only != "" && sum.Path != only {
			continue
		}
		fmt.Fprintf(e.stdout, "%s  %s\n", sum.Hash, sum.Path)
	}
	return nil
}

func cmdSearch(e *env, args []string) error {
	var q search.Query
	args, err := parseArgs(e, "search", args, 0, -1, func(fs *flag.FlagSet) {
		fs.StringVar(&q.NameGlob, "name", "", "Glob on the file name, or on the path when it contains /")
		fs.StringVar(&q.PathPrefix, "under", "", "Only files at or below this path")
		fs.IntVar(&q.MaxItems, "max", 0, "Maximum number of results")
		fs.IntVar(&q.SkipCount, "skip", 0, "Number of results to skip")
	})
	if err != nil {
		return err
	}
	if e.index == nil {
		return fmt.Errorf("%w: search needs the index enabled", errUsage)
	}
	q.Text = strings.Join(args, " ")

	if err := e.index.Add(e.fs.Root()); err != nil {
		return err
	}
	page, err := e.index.Search(q)
	if err != nil {
		return err
	}
	for _, r := range page.Results {
		fmt.Fprintf(e.stdout, "%s\t%s\n", r.Path, r.MediaType)
	}
	fmt.Fprintf(e.stderr, "%d of %d matches\n", len(page.Results), page.Total)
	return nil
}

// input opens the local file named in args, or falls back to stdin
func (e *env) input(args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return e.stdin, func() {}, nil
	}
	file, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}
