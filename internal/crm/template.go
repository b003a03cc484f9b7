// Package crm holds the CRM rules that sit above plain persistence:
// template rendering, the automation engine and assignment routing.
package crm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"
	"time"

	"github.com/solarvest/platform/internal/model"
)

// ErrTemplate wraps parse and render failures.
var ErrTemplate = errors.New("invalid template")

// KnownVariables are the fields a template may reference.
var KnownVariables = []string{
	"FirstName", "LastName", "FullName", "Email", "Phone", "Company", "Status",
	"AgentName", "AgentEmail", "Date",
}

// ExtractVariables parses subject and body and returns the sorted, unique
// top-level fields they reference. Unknown fields are an error.
func ExtractVariables(subject, body string) ([]string, error) {
	var vars []string
	for _, src := range []string{subject, body} {
		if src == "" {
			continue
		}
		t, err := template.New("t").Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
		}
		if t.Tree == nil {
			continue
		}
		walk(t.Tree.Root, func(n parse.Node) {
			if f, ok := n.(*parse.FieldNode); ok && len(f.Ident) > 0 {
				vars = append(vars, f.Ident[0])
			}
		})
	}

	slices.Sort(vars)
	vars = slices.Compact(vars)
	for _, v := range vars {
		if !slices.Contains(KnownVariables, v) {
			return nil, fmt.Errorf("%w: unknown variable %q", ErrTemplate, v)
		}
	}
	if vars == nil {
		vars = []string{}
	}
	return vars, nil
}

func walk(n parse.Node, fn func(parse.Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch x := n.(type) {
	case *parse.ListNode:
		if x == nil {
			return
		}
		for _, c := range x.Nodes {
			walk(c, fn)
		}
	case *parse.ActionNode:
		walk(x.Pipe, fn)
	case *parse.PipeNode:
		if x == nil {
			return
		}
		for _, c := range x.Cmds {
			walk(c, fn)
		}
	case *parse.CommandNode:
		for _, a := range x.Args {
			walk(a, fn)
		}
	case *parse.IfNode:
		walk(x.Pipe, fn)
		walk(x.List, fn)
		walk(x.ElseList, fn)
	case *parse.RangeNode:
		walk(x.Pipe, fn)
		walk(x.List, fn)
		walk(x.ElseList, fn)
	case *parse.WithNode:
		walk(x.Pipe, fn)
		walk(x.List, fn)
		walk(x.ElseList, fn)
	}
}

// TemplateData builds render data for a contact. agent may be nil.
func TemplateData(c *model.CrmContact, agent *model.User, now time.Time) map[string]any {
	data := map[string]any{
		"FirstName":  "",
		"LastName":   "",
		"FullName":   "",
		"Email":      "",
		"Phone":      "",
		"Company":    "",
		"Status":     "",
		"AgentName":  "",
		"AgentEmail": "",
		"Date":       now.Format("2 January 2006"),
	}
	if c != nil {
		data["FirstName"] = c.FirstName
		data["LastName"] = c.LastName
		data["FullName"] = c.FullName()
		data["Email"] = c.Email
		data["Phone"] = c.Phone
		data["Company"] = c.Company
		data["Status"] = string(c.Status)
	}
	if agent != nil {
		data["AgentName"] = agent.FullName()
		data["AgentEmail"] = agent.Email
	}
	return data
}

// Rendered is a template expanded for one recipient.
type Rendered struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// Render expands t with data. Keys in overrides replace data entries.
func Render(t *model.CrmTemplate, data map[string]any, overrides map[string]string) (*Rendered, error) {
	merged := make(map[string]any, len(data)+len(overrides))
	for k, v := range data {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	subject, err := execute(t.Subject, merged)
	if err != nil {
		return nil, err
	}
	body, err := execute(t.Body, merged)
	if err != nil {
		return nil, err
	}
	return &Rendered{Subject: subject, Body: body}, nil
}

func execute(src string, data map[string]any) (string, error) {
	if src == "" {
		return "", nil
	}
	t, err := template.New("t").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	return sb.String(), nil
}
