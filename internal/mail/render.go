package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mohammad-safakhou/dailydigest/internal/digest"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// sanitizeText strips any HTML the model smuggled into a string field so the
// plain-text body stays plain and the HTML body carries no markup of the
// model's choosing.
func sanitizeText(s string) string {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}

type renderData struct {
	Date   string
	Social []digest.Item
	Health []digest.Item
}

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;max-width:640px;margin:0 auto;color:#1a1a1a">
<h1>Daily Digest &mdash; {{.Date}}</h1>
<h2>Social</h2>
{{if .Social}}{{range .Social}}{{template "item" .}}{{end}}{{else}}<p><em>No social items today.</em></p>{{end}}
<h2>Health</h2>
{{if .Health}}{{range .Health}}{{template "item" .}}{{end}}{{else}}<p><em>No health items today.</em></p>{{end}}
<p style="color:#888;font-size:12px">Generated automatically. Reply to unsubscribe.</p>
</body>
</html>
{{define "item"}}
<div style="margin-bottom:24px">
<h3>{{.Title}}</h3>
<p>{{.SummaryCN}}</p>
<p>{{.SummaryEN}}</p>
<p>Score: <strong>{{.AIScore}}</strong>/100 &mdash; {{.AIScoreReason}}</p>
{{if .Tags}}<p>Tags: {{join .Tags ", "}}</p>{{end}}
{{if .XHSTitles}}<p>Promo titles:</p><ul>{{range .XHSTitles}}<li>{{.}}</li>{{end}}</ul>{{end}}
<p><a href="{{.SourceURL}}">{{.SourceName}}</a></p>
</div>
{{end}}`

const textBody = `DAILY DIGEST — {{.Date}}

== SOCIAL ==
{{if .Social}}{{range .Social}}{{template "item" .}}{{end}}{{else}}(no social items today)
{{end}}
== HEALTH ==
{{if .Health}}{{range .Health}}{{template "item" .}}{{end}}{{else}}(no health items today)
{{end}}
{{define "item"}}* {{.Title}}
{{.SummaryCN}}
{{.SummaryEN}}
Score: {{.AIScore}}/100 — {{.AIScoreReason}}
{{if .Tags}}Tags: {{join .Tags ", "}}
{{end}}{{if .XHSTitles}}Promo titles: {{join .XHSTitles " | "}}
{{end}}Source: {{.SourceName}} <{{.SourceURL}}>

{{end}}`

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.New("digest").
			Funcs(htmltemplate.FuncMap{"join": strings.Join}).
			Parse(htmlBody))
	textTmpl = texttemplate.Must(texttemplate.New("digest").
			Funcs(texttemplate.FuncMap{"join": strings.Join}).
			Parse(textBody))
)

// Render produces the HTML and plain-text bodies for one digest. Every item
// field appears in both renderings; empty categories get a placeholder line.
func Render(data digest.Data, now time.Time) (html string, text string, err error) {
	rd := renderData{
		Date:   now.Format("2006-01-02"),
		Social: sanitizeItems(data.Social),
		Health: sanitizeItems(data.Health),
	}
	var hbuf, tbuf bytes.Buffer
	if err := htmlTmpl.Execute(&hbuf, rd); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	if err := textTmpl.Execute(&tbuf, rd); err != nil {
		return "", "", fmt.Errorf("render text: %w", err)
	}
	return hbuf.String(), tbuf.String(), nil
}

// sanitizeItems returns cleaned copies; the digest itself is immutable.
func sanitizeItems(items []digest.Item) []digest.Item {
	out := make([]digest.Item, len(items))
	for i, it := range items {
		it.Title = sanitizeText(it.Title)
		it.SummaryEN = sanitizeText(it.SummaryEN)
		it.SummaryCN = sanitizeText(it.SummaryCN)
		it.SourceName = sanitizeText(it.SourceName)
		it.AIScoreReason = sanitizeText(it.AIScoreReason)
		it.Tags = sanitizeAll(it.Tags)
		it.XHSTitles = sanitizeAll(it.XHSTitles)
		out[i] = it
	}
	return out
}

func sanitizeAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = sanitizeText(v)
	}
	return out
}
