package convert

import (
	"strings"
)

// First-line markers are the wire contract with the external tool: the
// rendered text itself signals failure or degradation. They are decoded
// here, at the boundary, so nothing downstream inspects raw text.
const (
	errorMarker   = "# Error:"
	warningMarker = "# Warning:"
)

type Kind int

const (
	KindOK Kind = iota
	// KindWarning is degraded success: the content is still persisted
	// and the job completes, with the warning visible in the output.
	KindWarning
	// KindError fails the job; the content is discarded.
	KindError
)

// Result is the decoded outcome of a conversion or crawl.
type Result struct {
	Kind    Kind
	Content string
}

// FirstLine returns the first line of the content, which for warning and
// error results carries the marker and short description.
func (r Result) FirstLine() string {
	line, _, _ := strings.Cut(r.Content, "\n")
	return line
}

// Decode classifies rendered text by its first-line marker.
func Decode(content string) Result {
	switch {
	case strings.HasPrefix(content, errorMarker):
		return Result{Kind: KindError, Content: content}
	case strings.HasPrefix(content, warningMarker):
		return Result{Kind: KindWarning, Content: content}
	default:
		return Result{Kind: KindOK, Content: content}
	}
}

// Errorf builds a tagged error result.
func Errorf(title, body string) Result {
	return Result{Kind: KindError, Content: errorMarker + " " + title + "\n\n" + body}
}

// Warningf builds a tagged warning result.
func Warningf(title, body string) Result {
	return Result{Kind: KindWarning, Content: warningMarker + " " + title + "\n\n" + body}
}
