package auth

import (
	"bytes"
	"html/template"
)

type emailData struct {
	Name string
	Link string
	TTL  string
}

var resetEmail = template.Must(template.New("reset").Parse(`<p>Hello {{.Name}},</p>
<p>We received a request to reset your ThaiTable password. The link below is valid for {{.TTL}}.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not ask for this you can ignore this email.</p>`))

var verifyEmail = template.Must(template.New("verify").Parse(`<p>Hello {{.Name}},</p>
<p>Please confirm your email address for ThaiTable. The link below is valid for {{.TTL}}.</p>
<p><a href="{{.Link}}">Verify email</a></p>`))

func render(t *template.Template, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
