// ABOUTME: Renders a room transcript as a standalone HTML page
// ABOUTME: Message bodies are treated as Markdown and converted with goldmark

package gateway

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/hercules-gateway/internal/store"
)

// markdown renders agent output. Raw HTML in messages is dropped.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Room {{.Room.ID}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
header { border-bottom: 1px solid #ddd; margin-bottom: 1.5rem; }
article { border-left: 3px solid #8aa; padding: 0.25rem 1rem; margin: 1rem 0; }
article.system { border-color: #c55; }
.meta { color: #777; font-size: 0.85rem; }
pre { background: #f4f4f4; padding: 0.75rem; overflow-x: auto; }
</style>
</head>
<body>
<header>
<h1>Task</h1>
<p>{{.Room.TaskPrompt}}</p>
<p class="meta">Status: {{.Room.Status}} &middot; Created {{.Created}}</p>
</header>
{{range .Entries}}<article{{if .System}} class="system"{{end}}>
<p class="meta"><strong>{{.Agent}}</strong>{{if .Model}} &middot; {{.Model}}{{end}} &middot; {{.Time}}</p>
{{.Body}}
</article>
{{else}}<p class="meta">No messages yet.</p>
{{end}}</body>
</html>
`))

type transcriptEntry struct {
	Agent  string
	Model  string
	Time   string
	System bool
	Body   template.HTML
}

type transcriptPage struct {
	Room    *store.Room
	Created string
	Entries []transcriptEntry
}

// renderTranscript writes the HTML page for rm and its messages.
func renderTranscript(w *bytes.Buffer, rm *store.Room, messages []*store.Message) error {
	page := transcriptPage{
		Room:    rm,
		Created: rm.CreatedAt.UTC().Format(time.RFC1123),
		Entries: make([]transcriptEntry, 0, len(messages)),
	}

	for _, msg := range messages {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(msg.Content), &body); err != nil {
			return err
		}
		entry := transcriptEntry{
			Agent:  msg.AgentName,
			Time:   msg.CreatedAt.UTC().Format(time.TimeOnly),
			System: msg.CustomType != nil,
			// goldmark escapes text and omits raw HTML by default
			Body: template.HTML(body.String()),
		}
		if msg.ModelUsed != nil {
			entry.Model = *msg.ModelUsed
		}
		page.Entries = append(page.Entries, entry)
	}

	return transcriptTemplate.Execute(w, page)
}

// handleRoomTranscript handles GET /api/rooms/{id}/transcript.
func (g *Gateway) handleRoomTranscript(w http.ResponseWriter, r *http.Request) {
	rm, ok := g.ownedRoom(w, r)
	if !ok {
		return
	}

	messages, err := g.store.ListMessages(r.Context(), rm.ID, 0)
	if err != nil {
		g.logger.Error("failed to list messages", "room_id", rm.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var buf bytes.Buffer
	if err := renderTranscript(&buf, rm, messages); err != nil {
		g.logger.Error("failed to render transcript", "room_id", rm.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
