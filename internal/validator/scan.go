package validator

import (
	"fmt"
	"strings"
)

var closerFor = map[byte]byte{'(': ')', '[': ']', '{': '}'}

type openBracket struct {
	ch   byte
	line int
}

// scan walks text once, checking bracket balance outside string literals
// and comments. It returns text with literal contents and comments
// replaced by spaces (newlines kept, so line numbers still line up) for the
// pattern checks that follow.
func scan(text string) (masked string, findings []Finding) {
	out := []byte(text)
	blank := func(i int) {
		if out[i] != '\n' {
			out[i] = ' '
		}
	}

	var stack []openBracket
	line := 1
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\n':
			line++

		case '#':
			for i < len(text) && text[i] != '\n' {
				blank(i)
				i++
			}
			i--

		case '"', '\'':
			start := line
			if strings.HasPrefix(text[i:], strings.Repeat(string(c), 3)) {
				end, lines, ok := scanTriple(text, i+3, c)
				for j := i + 3; j < end; j++ {
					blank(j)
				}
				line += lines
				if !ok {
					findings = append(findings, unterminated(start))
					i = len(text)
					break
				}
				i = end + 2
				break
			}

			j := i + 1
			closed := false
			for j < len(text) {
				if text[j] == '\\' && j+1 < len(text) {
					if text[j+1] == '\n' {
						line++
					}
					blank(j)
					blank(j + 1)
					j += 2
					continue
				}
				if text[j] == c {
					closed = true
					break
				}
				if text[j] == '\n' {
					break
				}
				blank(j)
				j++
			}
			if !closed {
				findings = append(findings, unterminated(start))
				i = j - 1
				break
			}
			i = j

		case '(', '[', '{':
			stack = append(stack, openBracket{ch: c, line: line})

		case ')', ']', '}':
			if n := len(stack); n > 0 && closerFor[stack[n-1].ch] == c {
				stack = stack[:n-1]
				break
			}
			msg := fmt.Sprintf("unexpected closing %q", c)
			if n := len(stack); n > 0 {
				top := stack[n-1]
				msg = fmt.Sprintf("unexpected closing %q; %q from line %d is still open", c, top.ch, top.line)
			}
			findings = append(findings, Finding{
				Code:     ErrUnexpectedBracket,
				Severity: SeverityError,
				Line:     line,
				Message:  msg,
			})
		}
	}

	for _, b := range stack {
		findings = append(findings, Finding{
			Code:     ErrUnclosedBracket,
			Severity: SeverityError,
			Line:     b.line,
			Message:  fmt.Sprintf("unclosed %q", b.ch),
		})
	}
	return string(out), findings
}

// scanTriple finds the closing triple quote starting at from. end is the
// index of the closing run (or len(text)), lines the newlines passed.
func scanTriple(text string, from int, q byte) (end, lines int, ok bool) {
	closing := strings.Repeat(string(q), 3)
	for i := from; i < len(text); i++ {
		switch {
		case text[i] == '\\' && i+1 < len(text):
			if text[i+1] == '\n' {
				lines++
			}
			i++
		case text[i] == '\n':
			lines++
		case strings.HasPrefix(text[i:], closing):
			return i, lines, true
		}
	}
	return len(text), lines, false
}

func unterminated(line int) Finding {
	return Finding{
		Code:     ErrUnterminatedString,
		Severity: SeverityError,
		Line:     line,
		Message:  "unterminated string literal",
	}
}
