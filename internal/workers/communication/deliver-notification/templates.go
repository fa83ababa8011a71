package delivernotification

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"tucomercio/internal/models"
)

// message is what one template renders to.
type message struct {
	Subject string
	Text    string
	HTML    string
}

type templateData struct {
	Name  string
	Title string
	Body  string
	Link  string
}

var subjects = map[models.NotificationType]string{
	models.NotifyNewReview:        "Nueva reseña en tu comercio",
	models.NotifyReviewReply:      "Respondieron tu reseña",
	models.NotifyChatMessage:      "Tenés un mensaje nuevo",
	models.NotifyBusinessApproved: "Tu comercio fue aprobado",
	models.NotifyBusinessRejected: "Tu comercio no fue aprobado",
	models.NotifyBusinessSuspend:  "Tu comercio fue suspendido",
	models.NotifyCampaign:         "Nueva campaña en TuComercio.uy",
	models.NotifyCampaignRequest:  "Solicitud para unirse a una campaña",
	models.NotifyWelcome:          "Bienvenido a TuComercio.uy",
}

const textBody = `Hola{{if .Name}} {{.Name}}{{end}},

{{.Title}}
{{if .Body}}
{{.Body}}
{{end}}{{if .Link}}
Ver más: {{.Link}}
{{end}}
TuComercio.uy
`

const htmlBody = `<p>Hola{{if .Name}} {{.Name}}{{end}},</p>
<p><strong>{{.Title}}</strong></p>
{{if .Body}}<p>{{.Body}}</p>{{end}}
{{if .Link}}<p><a href="{{.Link}}">Ver más</a></p>{{end}}
<p>TuComercio.uy</p>
`

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

func render(in *Input, name, siteURL string) (message, error) {
	subject, ok := subjects[models.NotificationType(in.NotificationType)]
	if !ok {
		subject = in.Title
	}

	link := in.Link
	if link != "" && strings.HasPrefix(link, "/") && siteURL != "" {
		link = strings.TrimSuffix(siteURL, "/") + link
	}
	data := templateData{Name: name, Title: in.Title, Body: in.Body, Link: link}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return message{}, err
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return message{}, err
	}
	return message{Subject: subject, Text: text.String(), HTML: html.String()}, nil
}

// smsText keeps SMS bodies to a single segment where possible.
func smsText(in *Input) string {
	text := "TuComercio.uy: " + in.Title
	if r := []rune(text); len(r) > 160 {
		text = string(r[:157]) + "..."
	}
	return text
}
