package notify

import (
	"bytes"
	"html/template"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px; background: #f8f9fa; border-radius: 10px;">
		{{template "content" .}}
		<p style="color: #666; font-size: 0.85em; margin-top: 30px;">Submission ID: <code>{{.SubmissionID}}</code></p>
	</div>
</body>
</html>{{end}}`

var operatorTmpl = template.Must(template.Must(template.New("operator").Parse(layout)).Parse(`{{define "content"}}
		<h2 style="color: #667eea;">New Clip Received!</h2>
		<p><strong>Clip Type:</strong> {{.Category}}</p>
		<p><strong>Submitted by:</strong> {{.Name}} ({{.Email}})</p>
		<p><strong>Description:</strong><br>{{.Description}}</p>
		{{- if .BugDetails}}
		<p><strong>Bug Details:</strong><br>{{.BugDetails}}</p>
		{{- end}}
		<p><strong>File Info:</strong> {{.FileName}} ({{.FileSize}})</p>
		<div style="background: #e8f5e8; border-left: 4px solid #00b894; padding: 15px; margin: 20px 0;">
			<strong>Rights Agreement Confirmed:</strong><br>
			Submitter has agreed to all terms including YouTube publication rights and copyright transfer.
		</div>
		{{- if .Link}}
		<p><a href="{{.Link}}" style="background: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Download Clip</a></p>
		<p style="color: #666; font-size: 0.9em;">Or copy this link:<br><code>{{.Link}}</code></p>
		{{- end}}
		{{- if .ViewLink}}
		<p>View online: <a href="{{.ViewLink}}">{{.ViewLink}}</a></p>
		{{- end}}
		{{- if .Attached}}
		<p><em>Clip file is attached to this email.</em></p>
		{{- end}}
		{{- if .Pending}}
		<p><em>The submitter was asked to upload the clip to {{.TransferURL}} and send back a link. A follow-up email will arrive when they do.</em></p>
		{{- end}}
		<p style="color: #666; font-size: 0.9em;">Storage: {{.Backend}}{{if .StoredName}} ({{.StoredName}}){{end}}</p>
{{end}}`))

var submitterTmpl = template.Must(template.Must(template.New("submitter").Parse(layout)).Parse(`{{define "content"}}
		<h2 style="color: #667eea;">Thanks for your clip, {{.Name}}!</h2>
		<p>We received the details of your {{.Category}} clip <strong>{{.FileName}}</strong> ({{.FileSize}}).</p>
		<p>One more step is needed before we can review it:</p>
		<pre style="background: white; padding: 15px; border-radius: 6px; white-space: pre-wrap;">{{.Instructions}}</pre>
		{{- if .TransferURL}}
		<p><a href="{{.TransferURL}}" style="background: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Open transfer site</a></p>
		{{- end}}
		<p style="color: #666; font-size: 0.85em;">Keep your submission ID, you will need it when you send the link.</p>
{{end}}`))

var linkTmpl = template.Must(template.Must(template.New("link").Parse(layout)).Parse(`{{define "content"}}
		<h2 style="color: #00b894;">Clip Link Submitted</h2>
		<p><strong>Clip Type:</strong> {{.Category}}</p>
		<p><strong>Submitted by:</strong> {{.Name}} ({{.Email}})</p>
		<p><strong>File:</strong> {{.FileName}}{{if .FileSize}} ({{.FileSize}}){{end}}</p>
		<p><strong>Description:</strong><br>{{.Description}}</p>
		{{- if .BugDetails}}
		<p><strong>Bug Details:</strong><br>{{.BugDetails}}</p>
		{{- end}}
		<p><a href="{{.Link}}" style="background: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Open Clip</a></p>
		<p style="color: #666; font-size: 0.9em;">Or copy this link:<br><code>{{.Link}}</code></p>
{{end}}`))

// view is the data every template renders from. All fields are escaped by
// html/template.
type view struct {
	SubmissionID string
	Category     string
	Name         string
	Email        string
	Description  string
	BugDetails   string
	FileName     string
	FileSize     string
	Backend      string
	StoredName   string
	Link         string
	ViewLink     string
	Instructions string
	TransferURL  string
	Attached     bool
	Pending      bool
}

func render(t *template.Template, v view) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
