package crm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarvest/platform/internal/model"
)

func TestExtractVariables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject string
		body    string
		want    []string
		wantErr bool
	}{
		{name: "none", body: "Hello there", want: []string{}},
		{name: "sorted unique", subject: "Hi {{.FirstName}}", body: "{{.FirstName}} at {{.Company}}", want: []string{"Company", "FirstName"}},
		{name: "inside if", body: "{{if .Company}}From {{.Company}}{{end}} {{.Date}}", want: []string{"Company", "Date"}},
		{name: "unknown", body: "{{.Password}}", wantErr: true},
		{name: "syntax", body: "{{.FirstName", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractVariables(tt.subject, tt.body)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrTemplate), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	contact := &model.CrmContact{FirstName: "Ada", LastName: "Obi", Company: "Sunfield", Status: model.ContactLead}
	agent := &model.User{FirstName: "Sam", LastName: "Reed", Email: "sam@example.com"}
	tpl := &model.CrmTemplate{
		Subject: "Welcome {{.FirstName}}",
		Body:    "Hi {{.FullName}} of {{.Company}}, I'm {{.AgentName}}. {{.Date}}",
	}

	out, err := Render(tpl, TemplateData(contact, agent, now), nil)
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ada", out.Subject)
	assert.Equal(t, "Hi Ada Obi of Sunfield, I'm Sam Reed. 9 March 2026", out.Body)

	out, err = Render(tpl, TemplateData(contact, nil, now), map[string]string{"FirstName": "Dr. Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome Dr. Ada", out.Subject)

	_, err = Render(&model.CrmTemplate{Body: "{{.Missing}}"}, TemplateData(contact, nil, now), nil)
	assert.ErrorIs(t, err, ErrTemplate)
}
