package matrix

import (
	"html"
	"strings"

	"github.com/bdobrica/Shoukan/internal/shoukan/message"
)

// Render turns a bot message into the Markdown body and the HTML
// formatted_body of an m.text event.
//
// Suggested actions become a "Reply **yes** or **no**" line and every
// attachment a bold title followed by one "Name: value" line per field.
func Render(msg message.Message) (plain, formatted string) {
	var sections []string
	if msg.Text != "" {
		sections = append(sections, msg.Text)
	}

	for _, att := range msg.Attachments {
		var lines []string
		if att.Title != "" {
			lines = append(lines, "**"+att.Title+"**")
		}
		for _, f := range att.Fields {
			lines = append(lines, "- "+f.Name+": "+f.Value)
		}
		if len(lines) > 0 {
			sections = append(sections, strings.Join(lines, "\n"))
		}
	}

	if len(msg.SuggestedActions) > 0 {
		values := make([]string, len(msg.SuggestedActions))
		for i, a := range msg.SuggestedActions {
			values[i] = "**" + a.Value + "**"
		}
		sections = append(sections, "Reply "+joinOr(values))
	}

	plain = strings.Join(sections, "\n\n")
	return plain, markdownToHTML(plain)
}

// joinOr joins items as "a", "a or b", "a, b or c".
func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

// markdownToHTML converts the Markdown subset the bot writes: fenced code
// blocks, inline code, bold and newlines. Everything else is HTML-escaped,
// including user-supplied names echoed back in replies.
func markdownToHTML(md string) string {
	var out strings.Builder
	inCode := false
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "```") {
			if inCode {
				out.WriteString("</code></pre>")
			} else {
				out.WriteString("<pre><code>")
			}
			inCode = !inCode
			continue
		}
		if inCode {
			out.WriteString(html.EscapeString(line))
			out.WriteString("\n")
			continue
		}
		line = html.EscapeString(line)
		line = replaceDelimited(line, "`", "<code>", "</code>")
		line = replaceDelimited(line, "**", "<strong>", "</strong>")
		out.WriteString(line)
		out.WriteString("<br/>")
	}
	if inCode {
		out.WriteString("</code></pre>")
	}
	return strings.TrimSuffix(out.String(), "<br/>")
}

// replaceDelimited wraps complete delim…delim pairs in open/close. An
// unmatched opener is left as-is.
func replaceDelimited(s, delim, open, close string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			break
		}
		end += start + len(delim)
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : end])
		b.WriteString(close)
		s = s[end+len(delim):]
	}
	b.WriteString(s)
	return b.String()
}
