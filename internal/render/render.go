package render

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

// Renderer converts a job description into HTML.
type Renderer interface {
	Render(text string) (Document, error)
}

// Document is the rendered form of a description.
type Document struct {
	HTML      string
	Platforms []string
}

// Error reports a description that could not be rendered.
type Error struct {
	Op   string
	Line int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render error during %s at line %d: %v", e.Op, e.Line, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrUnknownDirective    = errors.New("unknown directive")
	ErrUnterminatedLiteral = errors.New("unterminated inline literal")
)

const supportedOSDirective = "supported_os"

// RSTRenderer renders the reStructuredText subset found in job descriptions:
// paragraphs, section titles, bullet lists, literal blocks, inline markup and
// the note, warning, code-block, zuul:jobvar, zuul:rolevar and supported_os
// directives.
type RSTRenderer struct{}

// NewRSTRenderer returns the default description renderer.
func NewRSTRenderer() *RSTRenderer {
	return &RSTRenderer{}
}

type parser struct {
	lines     []string
	pos       int
	out       strings.Builder
	platforms []string
	seen      map[string]bool
	levels    []byte
}

func (r *RSTRenderer) Render(text string) (Document, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	p := &parser{
		lines: strings.Split(strings.TrimRight(text, "\n"), "\n"),
		seen:  map[string]bool{},
	}
	if err := p.parse(); err != nil {
		return Document{}, err
	}
	platforms := p.platforms
	if platforms == nil {
		platforms = []string{}
	}
	return Document{HTML: p.out.String(), Platforms: platforms}, nil
}

func (p *parser) parse() error {
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			p.pos++
		case strings.HasPrefix(trimmed, ".. "):
			if err := p.directive(); err != nil {
				return err
			}
		case isBullet(trimmed):
			if err := p.list(); err != nil {
				return err
			}
		case p.pos+1 < len(p.lines) && isUnderline(p.lines[p.pos+1], trimmed):
			if err := p.title(trimmed, p.lines[p.pos+1][0]); err != nil {
				return err
			}
			p.pos += 2
		default:
			if err := p.paragraph(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parser) title(text string, marker byte) error {
	level := strings.IndexByte(string(p.levels), marker)
	if level < 0 {
		p.levels = append(p.levels, marker)
		level = len(p.levels) - 1
	}
	tag := level + 2
	if tag > 6 {
		tag = 6
	}
	inline, err := p.inline(text, p.pos+1)
	if err != nil {
		return err
	}
	fmt.Fprintf(&p.out, "<h%d>%s</h%d>\n", tag, inline, tag)
	return nil
}

func (p *parser) paragraph() error {
	start := p.pos + 1
	var parts []string
	for p.pos < len(p.lines) {
		trimmed := strings.TrimSpace(p.lines[p.pos])
		if trimmed == "" || (len(parts) > 0 && (isBullet(trimmed) || strings.HasPrefix(trimmed, ".. "))) {
			break
		}
		parts = append(parts, trimmed)
		p.pos++
	}

	text := strings.Join(parts, " ")
	literal := strings.HasSuffix(text, "::")
	if literal {
		text = strings.TrimSuffix(text, ":")
		if text == ":" || strings.HasSuffix(text, " :") {
			text = strings.TrimSuffix(text, ":")
		}
	}
	if strings.TrimSpace(text) != "" {
		inline, err := p.inline(text, start)
		if err != nil {
			return err
		}
		fmt.Fprintf(&p.out, "<p>%s</p>\n", inline)
	}
	if literal {
		body := p.indentedBlock()
		fmt.Fprintf(&p.out, "<pre>%s</pre>\n", html.EscapeString(body))
	}
	return nil
}

func (p *parser) list() error {
	p.out.WriteString("<ul>\n")
	for p.pos < len(p.lines) {
		trimmed := strings.TrimSpace(p.lines[p.pos])
		if !isBullet(trimmed) {
			break
		}
		start := p.pos + 1
		item := []string{strings.TrimSpace(trimmed[2:])}
		p.pos++
		for p.pos < len(p.lines) {
			next := p.lines[p.pos]
			if strings.TrimSpace(next) == "" || !startsIndented(next) {
				break
			}
			item = append(item, strings.TrimSpace(next))
			p.pos++
		}
		inline, err := p.inline(strings.Join(item, " "), start)
		if err != nil {
			return err
		}
		fmt.Fprintf(&p.out, "<li>%s</li>\n", inline)
	}
	p.out.WriteString("</ul>\n")
	return nil
}

func (p *parser) directive() error {
	start := p.pos + 1
	trimmed := strings.TrimSpace(p.lines[p.pos])
	p.pos++

	name, argument, ok := strings.Cut(strings.TrimPrefix(trimmed, ".. "), "::")
	if !ok {
		// RST comment
		p.indentedBlock()
		return nil
	}
	name = strings.TrimSpace(name)
	argument = strings.TrimSpace(argument)

	switch name {
	case supportedOSDirective:
		body := p.indentedBlock()
		p.addPlatforms(argument + " " + body)
	case "note", "warning":
		body := strings.TrimSpace(argument + " " + strings.Join(strings.Fields(p.indentedBlock()), " "))
		inline, err := p.inline(body, start)
		if err != nil {
			return err
		}
		fmt.Fprintf(&p.out, "<div class=\"admonition %s\"><p>%s</p></div>\n", name, inline)
	case "code-block", "code":
		body := p.indentedBlock()
		fmt.Fprintf(&p.out, "<pre class=\"code %s\">%s</pre>\n", html.EscapeString(argument), html.EscapeString(body))
	case "zuul:jobvar", "zuul:rolevar":
		body := strings.Join(strings.Fields(p.indentedBlock()), " ")
		inline, err := p.inline(body, start)
		if err != nil {
			return err
		}
		fmt.Fprintf(&p.out, "<dl class=\"%s\"><dt><code>%s</code></dt><dd>%s</dd></dl>\n",
			strings.ReplaceAll(name, ":", "-"), html.EscapeString(argument), inline)
	default:
		return &Error{Op: "directive", Line: start, Err: fmt.Errorf("%w: %s", ErrUnknownDirective, name)}
	}
	return nil
}

// indentedBlock consumes the indented lines following the current position and
// returns them dedented.
func (p *parser) indentedBlock() string {
	for p.pos < len(p.lines) && strings.TrimSpace(p.lines[p.pos]) == "" {
		p.pos++
	}
	var block []string
	indent := -1
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		if strings.TrimSpace(line) == "" {
			block = append(block, "")
			p.pos++
			continue
		}
		if !startsIndented(line) {
			break
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
		block = append(block, line)
		p.pos++
	}
	for i, line := range block {
		if len(line) >= indent && indent > 0 {
			block[i] = line[indent:]
		}
	}
	return strings.Trim(strings.Join(block, "\n"), "\n")
}

func (p *parser) addPlatforms(raw string) {
	for _, field := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == '|' || r == ',' || r == ' ' || r == '\n' || r == '\t'
	}) {
		platform := strings.ToLower(strings.TrimSpace(field))
		if platform == "" || p.seen[platform] {
			continue
		}
		p.seen[platform] = true
		p.platforms = append(p.platforms, platform)
	}
}

// inline escapes text and renders ``literal``, **strong** and *emphasis* markup.
// line is where the block holding text starts, for error reports.
func (p *parser) inline(text string, line int) (string, error) {
	var out strings.Builder
	for {
		i := strings.Index(text, "``")
		if i < 0 {
			out.WriteString(emphasis(html.EscapeString(text)))
			return out.String(), nil
		}
		end := strings.Index(text[i+2:], "``")
		if end < 0 {
			return "", &Error{Op: "inline", Line: line, Err: ErrUnterminatedLiteral}
		}
		out.WriteString(emphasis(html.EscapeString(text[:i])))
		out.WriteString("<code>" + html.EscapeString(text[i+2:i+2+end]) + "</code>")
		text = text[i+2+end+2:]
	}
}

func emphasis(text string) string {
	text = wrapPairs(text, "**", "strong")
	return wrapPairs(text, "*", "em")
}

func wrapPairs(text, marker, tag string) string {
	var out strings.Builder
	for {
		i := strings.Index(text, marker)
		if i < 0 {
			break
		}
		end := strings.Index(text[i+len(marker):], marker)
		if end <= 0 {
			break
		}
		out.WriteString(text[:i])
		out.WriteString("<" + tag + ">" + text[i+len(marker):i+len(marker)+end] + "</" + tag + ">")
		text = text[i+len(marker)+end+len(marker):]
	}
	out.WriteString(text)
	return out.String()
}

func isBullet(trimmed string) bool {
	return strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "- ")
}

func startsIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

func isUnderline(line, title string) bool {
	line = strings.TrimRight(line, " ")
	if len(line) < 3 || len(line) < len(title) {
		return false
	}
	if !strings.ContainsRune("=-~^\"'`#*+", rune(line[0])) {
		return false
	}
	return strings.Count(line, string(line[0])) == len(line)
}
