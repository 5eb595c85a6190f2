package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

var colorEnabled = true

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

// categoryColor tells store and persistence failures apart from
// configuration mistakes at a glance.
func categoryColor(c Category) string {
	switch c {
	case CategoryStore, CategoryRuntime:
		return colorYellow
	case CategoryPersist:
		return colorBlue
	default:
		return colorCyan
	}
}

// Format renders the error for a terminal: the code and category, the
// offending file location, the explanation, the chain of causes, a hint
// and the docs link.
func (e *Error) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(color(colorRed+colorBold, "ERROR"))
	if e.Code != "" {
		b.WriteString(" " + color(colorBold, e.Code))
	}
	if e.Category != "" {
		b.WriteString(" " + color(categoryColor(e.Category), "["+string(e.Category)+"]"))
	}
	b.WriteString(": " + e.Message + "\n\n")

	if e.Location != nil {
		b.WriteString("  " + color(colorCyan, e.Location.String()) + "\n")
		writeContext(&b, e.Location, e.Context)
		b.WriteString("\n")
	}

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, 70) {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")
	}

	if causes := e.Causes(); len(causes) > 0 {
		b.WriteString("  " + color(colorGray, "Caused by:") + "\n")
		for i, c := range causes {
			b.WriteString(strings.Repeat("  ", i+2) + c + "\n")
		}
		b.WriteString("\n")
	}

	if e.Suggestion != "" {
		b.WriteString("  " + color(colorCyan, "Hint: ") + e.Suggestion + "\n\n")
	}

	if e.DocURL != "" {
		b.WriteString("  " + color(colorGray, "Learn more: ") + color(colorBlue, e.DocURL) + "\n")
	}
	return b.String()
}

func writeContext(b *strings.Builder, loc *Location, lines []string) {
	start := loc.Line - len(lines)/2
	for i, line := range lines {
		n := start + i
		marker := "  "
		if n == loc.Line {
			marker = color(colorRed, "→ ")
		}
		fmt.Fprintf(b, "  %s%4d %s %s\n", marker, n, color(colorGray, "│"), line)
		if n == loc.Line && loc.Column > 0 {
			fmt.Fprintf(b, "         %s %s%s\n", color(colorGray, "│"),
				strings.Repeat(" ", loc.Column-1), color(colorRed, "^"))
		}
	}
}

// Causes lists the wrapped chain, outermost first. A coded cause is shown
// as its code and message and the walk continues below it; any other error
// already prints its own chain and ends the list.
func (e *Error) Causes() []string {
	var out []string
	for err := e.Wrapped; err != nil; {
		var ce *Error
		if !errors.As(err, &ce) || ce == e {
			out = append(out, err.Error())
			break
		}
		if err != error(ce) {
			// A plain wrapper around a coded error; keep its own text.
			out = append(out, err.Error())
			break
		}
		line := ce.Message
		if ce.Code != "" {
			line = ce.Code + ": " + line
		}
		out = append(out, line)
		err = ce.Wrapped
	}
	return out
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category,omitempty"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Causes     []string      `json:"causes,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	DocURL     string        `json:"docUrl,omitempty"`
}

// MarshalJSON encodes the error with its cause chain.
func (e *Error) MarshalJSON() ([]byte, error) {
	je := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Causes:     e.Causes(),
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if e.Location != nil {
		je.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	return json.Marshal(je)
}

// FormatJSON returns the error as a single-line JSON object.
func (e *Error) FormatJSON() string {
	data, err := e.MarshalJSON()
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Error())
	}
	return string(data)
}

func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+len(word)+1 > width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// PrintError writes err to w, formatted when it carries an Error.
func PrintError(w io.Writer, err error) {
	var ce *Error
	if errors.As(err, &ce) {
		fmt.Fprint(w, ce.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", color(colorRed+colorBold, "ERROR:"), err.Error())
}
