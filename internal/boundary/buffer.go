// Package boundary keeps the generated and manual regions of a script's
// source apart so that regeneration never destroys hand-written code.
//
// The full text is always generated + "\n" + manual. The split is tracked
// by remembering the last generated text; it is recomputed on every
// resynthesis rather than diffed. When the author has edited inside the
// generated region the split becomes a best-effort line match, and the
// result is flagged as a conflict instead of discarding anything.
package boundary

import (
	"regexp"
	"strings"
	"sync"

	"github.com/roach88/autovnc/internal/synth"
)

// entryHeader matches the entry function definition at any indentation.
var entryHeader = regexp.MustCompile(`^([ \t]*)def[ \t]+` + synth.EntryName + `[ \t]*\([^)]*\)[ \t]*(->[^:]*)?:[ \t]*(#.*)?$`)

// tabWidth is the column width a tab counts for when comparing indentation.
const tabWidth = 4

// Buffer is one script's live source text.
//
// Thread-safety: All methods are safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	text      string
	generated string
	lineCount int
}

// NewBuffer creates a buffer whose text is generated + "\n" + manual.
func NewBuffer(generated, manual string) *Buffer {
	return &Buffer{
		text:      generated + "\n" + manual,
		generated: generated,
		lineCount: synth.LineCount(generated),
	}
}

// Restore recreates a buffer from stored text and the stored generated line
// count. The generated region is the first lineCount lines of text.
func Restore(text string, lineCount int) *Buffer {
	lines := strings.Split(text, "\n")
	if lineCount > len(lines) {
		lineCount = len(lines)
	}
	if lineCount < 0 {
		lineCount = 0
	}
	return &Buffer{
		text:      text,
		generated: strings.Join(lines[:lineCount], "\n"),
		lineCount: lineCount,
	}
}

// Resume recreates a buffer from stored text whose generated region was
// generated when it was saved. Unlike Restore, the stored prefix is not
// trusted: if the author edited inside it before saving, the next
// Resynthesize takes the conflict path. An empty generated treats all of
// text as unclassified, so the next Resynthesize keeps it whole as manual
// and reports a conflict.
func Resume(text, generated string) *Buffer {
	return &Buffer{
		text:      text,
		generated: generated,
		lineCount: synth.LineCount(generated),
	}
}

// Text returns the full source.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// SetText replaces the full source, e.g. after an editor change. The
// remembered generated text is kept so the next resynthesis can tell
// whether the author touched it.
func (b *Buffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}

// Generated returns the last known generated region.
func (b *Buffer) Generated() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generated
}

// GeneratedLineCount returns the line count of the generated region.
func (b *Buffer) GeneratedLineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lineCount
}

// Snapshot returns text and generated line count from the same instant.
func (b *Buffer) Snapshot() (text string, generatedLines int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, b.lineCount
}

// Manual returns the manual region as the next resynthesis would see it.
func (b *Buffer) Manual() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	manual, _ := split(b.text, b.generated)
	return manual
}

// ResynthResult describes a resynthesis.
type ResynthResult struct {
	Text   string
	Manual string
	// Conflict is set when the author edited inside the generated region
	// and the manual region had to be found by line matching.
	Conflict bool
	// MatchedLines is how many leading lines of the old generated text were
	// found unchanged. Only meaningful when Conflict is set.
	MatchedLines int
}

// Resynthesize replaces the generated region with newGenerated and keeps the
// manual region. Manual content is never dropped.
func (b *Buffer) Resynthesize(newGenerated string) ResynthResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	manual, matched := split(b.text, b.generated)
	res := ResynthResult{Manual: manual}
	if matched >= 0 {
		res.Conflict = true
		res.MatchedLines = matched
	}

	b.generated = newGenerated
	b.lineCount = synth.LineCount(newGenerated)
	b.text = newGenerated + "\n" + manual
	res.Text = b.text
	return res
}

// split separates text into its manual suffix. matched is -1 when text
// still starts with generated verbatim, otherwise the number of leading
// lines shared with generated.
func split(text, generated string) (manual string, matched int) {
	if rest, ok := strings.CutPrefix(text, generated); ok {
		if rest == "" {
			return "", -1
		}
		if m, ok := strings.CutPrefix(rest, "\n"); ok {
			return m, -1
		}
	}

	oldLines := strings.Split(generated, "\n")
	liveLines := strings.Split(text, "\n")
	k := 0
	for k < len(oldLines) && k < len(liveLines) && oldLines[k] == liveLines[k] {
		k++
	}
	return strings.Join(liveLines[k:], "\n"), k
}

// Placement says where Insert put a snippet.
type Placement int

const (
	// ReplacedPlaceholder means the entry body was only the placeholder.
	ReplacedPlaceholder Placement = iota + 1
	// AppendedToBody means the snippet follows the last body line.
	AppendedToBody
	// AppendedToEnd means no entry function was found.
	AppendedToEnd
)

func (p Placement) String() string {
	switch p {
	case ReplacedPlaceholder:
		return "replaced_placeholder"
	case AppendedToBody:
		return "appended_to_body"
	case AppendedToEnd:
		return "appended_to_end"
	}
	return "unknown"
}

// InsertResult describes an insertion.
type InsertResult struct {
	Placement Placement
	// Line is the 0-based index of the first inserted line.
	Line int
	// Generated is set when the insertion landed inside the generated
	// region and that region grew accordingly.
	Generated bool
}

// Insert places snippet (one or more unindented lines) into the entry
// function body without resynthesizing.
func (b *Buffer) Insert(snippet string) InsertResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	snippetLines := strings.Split(strings.TrimRight(snippet, "\n"), "\n")
	lines := strings.Split(b.text, "\n")

	header := findEntry(lines)
	if header < 0 {
		return b.appendAtEnd(snippetLines)
	}

	headerIndent := indentWidth(lines[header])
	lastBody := header
	var content []int
scan:
	for i := header + 1; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#"):
			if indentWidth(line) > headerIndent {
				lastBody = i
				content = append(content, i)
			}
		case indentWidth(line) > headerIndent:
			lastBody = i
			content = append(content, i)
		default:
			break scan
		}
	}

	bodyIndent := strings.Repeat(" ", headerIndent+4)
	if len(content) > 0 {
		first := lines[content[0]]
		bodyIndent = first[:len(first)-len(strings.TrimLeft(first, " \t"))]
	}
	indented := make([]string, len(snippetLines))
	for i, l := range snippetLines {
		if l != "" {
			indented[i] = bodyIndent + l
		}
	}

	var at, removed int
	placement := AppendedToBody
	if len(content) == 1 && strings.TrimSpace(lines[content[0]]) == synth.Placeholder {
		at, removed = content[0], 1
		placement = ReplacedPlaceholder
	} else {
		at = lastBody + 1
	}

	inGenerated := b.generatedIsPrefix() && at < b.lineCount
	out := make([]string, 0, len(lines)+len(indented))
	out = append(out, lines[:at]...)
	out = append(out, indented...)
	out = append(out, lines[at+removed:]...)
	b.text = strings.Join(out, "\n")

	if inGenerated {
		b.lineCount += len(indented) - removed
		b.generated = strings.Join(out[:b.lineCount], "\n")
	}
	return InsertResult{Placement: placement, Line: at, Generated: inGenerated}
}

func (b *Buffer) appendAtEnd(snippetLines []string) InsertResult {
	base := strings.TrimSuffix(b.text, "\n")
	snippet := strings.Join(snippetLines, "\n")
	if base == "" {
		b.text = snippet
		return InsertResult{Placement: AppendedToEnd, Line: 0}
	}
	b.text = base + "\n\n" + snippet
	return InsertResult{Placement: AppendedToEnd, Line: strings.Count(base, "\n") + 2}
}

// generatedIsPrefix reports whether the remembered generated region is
// still an exact prefix of the text on line boundaries.
func (b *Buffer) generatedIsPrefix() bool {
	if b.lineCount == 0 {
		return false
	}
	rest, ok := strings.CutPrefix(b.text, b.generated)
	return ok && (rest == "" || strings.HasPrefix(rest, "\n"))
}

// findEntry returns the index of the first entry function header, or -1.
func findEntry(lines []string) int {
	for i, l := range lines {
		if entryHeader.MatchString(l) {
			return i
		}
	}
	return -1
}

// FindEntry reports the 0-based line of the entry function header in text.
func FindEntry(text string) (int, bool) {
	i := findEntry(strings.Split(text, "\n"))
	return i, i >= 0
}

func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += tabWidth
		default:
			return w
		}
	}
	return w
}

// IsEntryHeader reports whether line is an entry function definition.
func IsEntryHeader(line string) bool {
	return entryHeader.MatchString(line)
}
