package search

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
)

// DefaultMaxFileSize bounds how much of a file is read for indexing
const DefaultMaxFileSize = 1 << 20

// Query selects documents. Zero fields do not restrict.
type Query struct {
	Text       string // every term must occur in the content
	NameGlob   string // doublestar pattern on the name, or on the path when it contains "/"
	PathPrefix string // only documents at or below this path
	MaxItems   int
	SkipCount  int
}

// Result is one matching document
type Result struct {
	Path      string
	MediaType string
	Charset   string
}

// Page is a window of the matches of a query
type Page struct {
	Results []Result
	Total   int
}

type document struct {
	path      string
	name      string
	mediaType string
	charset   string
	terms     map[string]struct{}
}

// MemoryIndex is an in-process full-text index
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]*document

	maxFileSize int64
	excludeDir  string
	sanitizer   *bluemonday.Policy
	logger      *zap.Logger
}

// IndexOption configures a MemoryIndex
type IndexOption func(*MemoryIndex)

// WithMaxFileSize bounds how many bytes of a file are indexed
func WithMaxFileSize(n int64) IndexOption {
	return func(ix *MemoryIndex) {
		if n > 0 {
			ix.maxFileSize = n
		}
	}
}

// WithExcludedDir names a top-level directory of the root never indexed
func WithExcludedDir(name string) IndexOption {
	return func(ix *MemoryIndex) { ix.excludeDir = name }
}

// WithIndexLogger sets the logger
func WithIndexLogger(logger *zap.Logger) IndexOption {
	return func(ix *MemoryIndex) { ix.logger = logger }
}

// NewMemoryIndex creates an empty index
func NewMemoryIndex(opts ...IndexOption) *MemoryIndex {
	ix := &MemoryIndex{
		docs:        make(map[string]*document),
		maxFileSize: DefaultMaxFileSize,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Add indexes a file, or every file below a folder
func (ix *MemoryIndex) Add(e Entry) error {
	if e.IsFile() {
		return ix.indexFile(e.Path(), e.OSPath())
	}
	return ix.indexFolder(e.Path(), e.OSPath())
}

// Update re-indexes a file
func (ix *MemoryIndex) Update(e Entry) error {
	return ix.Add(e)
}

// Delete drops a document, or every document at or below a folder
func (ix *MemoryIndex) Delete(path string, isFile bool) error {
	p, err := paths.Parse(path)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if isFile {
		delete(ix.docs, p.String())
		return nil
	}
	for key := range ix.docs {
		if docUnder(key, p) {
			delete(ix.docs, key)
		}
	}
	return nil
}

// Len returns the number of indexed documents
func (ix *MemoryIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns the documents matching q ordered by path
func (ix *MemoryIndex) Search(q Query) (Page, error) {
	if q.NameGlob != "" && !doublestar.ValidatePattern(q.NameGlob) {
		return Page{}, fmt.Errorf("invalid name pattern %q", q.NameGlob)
	}
	var prefix paths.Path
	if q.PathPrefix != "" {
		p, err := paths.Parse(q.PathPrefix)
		if err != nil {
			return Page{}, err
		}
		prefix = p
	}
	terms := tokenize(q.Text)

	ix.mu.RLock()
	var matches []*document
	for _, doc := range ix.docs {
		if !docUnder(doc.path, prefix) || !matchName(q.NameGlob, doc) || !matchTerms(terms, doc) {
			continue
		}
		matches = append(matches, doc)
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].path < matches[j].path })

	page := Page{Total: len(matches)}
	start := min(max(q.SkipCount, 0), len(matches))
	end := len(matches)
	if q.MaxItems > 0 {
		end = min(start+q.MaxItems, end)
	}
	for _, doc := range matches[start:end] {
		page.Results = append(page.Results, Result{Path: doc.path, MediaType: doc.mediaType, Charset: doc.charset})
	}
	return page, nil
}

func (ix *MemoryIndex) indexFolder(folder paths.Path, root string) error {
	var (
		mu   sync.Mutex
		docs []*document
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		relOS, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel, err := paths.Parse(filepath.ToSlash(relOS))
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if ix.excludeDir != "" && folder.IsRoot() && rel.Len() == 1 && rel.Name() == ix.excludeDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		doc, err := ix.analyze(folder.NewPath(rel.Elements()...), path)
		if err != nil {
			ix.logger.Debug("skipping unreadable file", zap.String("path", path), zap.Error(err))
			return nil
		}
		mu.Lock()
		docs = append(docs, doc)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", folder, err)
	}

	ix.mu.Lock()
	for _, doc := range docs {
		ix.docs[doc.path] = doc
	}
	ix.mu.Unlock()
	return nil
}

func (ix *MemoryIndex) indexFile(p paths.Path, osPath string) error {
	doc, err := ix.analyze(p, osPath)
	if err != nil {
		return fmt.Errorf("index %s: %w", p, err)
	}
	ix.mu.Lock()
	ix.docs[doc.path] = doc
	ix.mu.Unlock()
	return nil
}

// analyze reads the head of a file and extracts its terms
func (ix *MemoryIndex) analyze(p paths.Path, osPath string) (*document, error) {
	f, err := os.Open(osPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, ix.maxFileSize))
	if err != nil {
		return nil, err
	}

	mtype := mimetype.Detect(data)
	doc := &document{
		path:      p.String(),
		name:      p.Name(),
		mediaType: mtype.String(),
	}
	if !isText(mtype) {
		return doc, nil
	}
	if mtype.Is("text/html") || mtype.Is("text/xml") || mtype.Is("image/svg+xml") {
		data = ix.sanitizer.SanitizeBytes(data)
	}
	doc.charset = detectCharset(data)
	doc.terms = make(map[string]struct{})
	for _, term := range tokenize(string(data)) {
		doc.terms[term] = struct{}{}
	}
	return doc, nil
}

func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return mtype.Is("application/json") || mtype.Is("application/javascript")
}

func detectCharset(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func docUnder(docPath string, prefix paths.Path) bool {
	if prefix.IsRoot() {
		return true
	}
	p := prefix.String()
	return docPath == p || strings.HasPrefix(docPath, p+"/")
}

func matchName(pattern string, doc *document) bool {
	if pattern == "" {
		return true
	}
	subject := doc.name
	if strings.Contains(pattern, "/") {
		subject = strings.TrimPrefix(doc.path, "/")
		pattern = strings.TrimPrefix(pattern, "/")
	}
	ok, _ := doublestar.Match(pattern, subject)
	return ok
}

func matchTerms(terms []string, doc *document) bool {
	for _, term := range terms {
		if _, ok := doc.terms[term]; !ok {
			return false
		}
	}
	return true
}

