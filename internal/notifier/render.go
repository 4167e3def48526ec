package notifier

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"

	"go.uber.org/zap"
)

type digestView struct {
	Threads   []thread
	SiteName  string
	ServerURL string
	CanReply  bool
}

var textDigest = template.Must(template.New("digest.txt").Parse(
	`{{range .Threads}}{{.Header}}
{{range .Blocks}}{{if .ShowSender}}
{{.Sender}}
{{end}}{{range .Lines}}{{.}}
{{end}}{{end}}
{{end}}--
Reply in {{.SiteName}}{{if .ServerURL}} at {{.ServerURL}}{{end}}
{{if .CanReply}}Or just reply to this email.{{else}}Please do not reply to this automated message.{{end}}

You are receiving this because you were away when these messages arrived.
`))

var htmlDigest = htmltemplate.Must(htmltemplate.New("digest.html").Parse(
	`<html><body>
{{range .Threads}}<div class="thread">
<h3>{{.Header}}</h3>
{{range .Blocks}}{{if .ShowSender}}<p class="sender"><b>{{.Sender}}</b></p>
{{end}}{{range .Lines}}<p class="message">{{.}}</p>
{{end}}{{end}}</div>
{{end}}<hr>
<p>Reply in {{if .ServerURL}}<a href="{{.ServerURL}}">{{.SiteName}}</a>{{else}}{{.SiteName}}{{end}}.
{{if .CanReply}}Or just reply to this email.{{else}}Please do not reply to this automated message.{{end}}</p>
</body></html>
`))

// render produces the plain-text and HTML bodies. The templates are fixed and
// the view holds only strings, so an execution error means a bug; the text
// part is still returned if only HTML fails.
func render(log *zap.Logger, view digestView) (string, string) {
	var text, html bytes.Buffer
	if err := textDigest.Execute(&text, view); err != nil {
		log.Error("render text digest", zap.Error(err))
	}
	if err := htmlDigest.Execute(&html, view); err != nil {
		log.Error("render html digest", zap.Error(err))
		html.Reset()
	}
	return text.String(), html.String()
}
