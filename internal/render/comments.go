package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/issuetree/internal/comments"
)

// Thread renders pull-request comment threads.
type Thread struct {
	st styles
}

// NewThread creates a comment renderer whose color profile matches out.
func NewThread(out io.Writer) *Thread {
	return &Thread{st: newStyles(lipgloss.NewRenderer(out))}
}

// Render draws roots with replies nested under them. Comment bodies are
// printed under their header line, indented to the reply depth.
func (t *Thread) Render(roots []*comments.Comment) string {
	if len(roots) == 0 {
		return t.st.muted.Render("No comments") + "\n"
	}
	var sb strings.Builder
	t.write(&sb, roots, "", 0)
	return sb.String()
}

func (t *Thread) write(sb *strings.Builder, nodes []*comments.Comment, prefix string, depth int) {
	for i, c := range nodes {
		last := i == len(nodes)-1

		connector, childPrefix := "", ""
		if depth > 0 {
			connector, childPrefix = branchMid, prefix+pipe
			if last {
				connector, childPrefix = branchLast, prefix+blank
			}
		}
		// Body lines continue the branch of this comment.
		bodyPrefix := childPrefix + blank
		if len(c.Replies) > 0 {
			bodyPrefix = childPrefix + pipe
		}

		sb.WriteString(t.st.muted.Render(prefix + connector))
		sb.WriteString(t.header(c))
		sb.WriteString("\n")
		for _, line := range strings.Split(strings.TrimRight(c.Raw, "\n"), "\n") {
			sb.WriteString(t.st.muted.Render(bodyPrefix))
			if c.Deleted || c.Raw == comments.DeletedText {
				sb.WriteString(t.st.muted.Render(line))
			} else {
				sb.WriteString(line)
			}
			sb.WriteString("\n")
		}

		t.write(sb, c.Replies, childPrefix, depth+1)
	}
}

func (t *Thread) header(c *comments.Comment) string {
	var sb strings.Builder
	sb.WriteString(t.st.author.Render(c.Author))
	if !c.Created.IsZero() {
		sb.WriteString(t.st.muted.Render(" · " + c.Created.UTC().Format(time.DateTime)))
	}
	if c.Inline != nil {
		line := c.Inline.To
		if line == 0 {
			line = c.Inline.From
		}
		loc := c.Inline.Path
		if line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, line)
		}
		sb.WriteString(t.st.key.Render(" " + loc))
	}
	return sb.String()
}
