package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/solarvest/platform/internal/model"
)

func TestMatchConditions(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"contact": map[string]any{
			"status":  "lead",
			"source":  "web",
			"company": "Sunfield Energy",
			"email":   "",
			"tags":    []string{"vip", "solar"},
			"score":   42,
		},
		"message": map[string]any{"body": "Please CALL me back"},
	}

	tests := []struct {
		name string
		cond model.Condition
		want bool
	}{
		{"eq case-insensitive", model.Condition{Field: "contact.status", Operator: model.OpEq, Value: "LEAD"}, true},
		{"eq numeric", model.Condition{Field: "contact.score", Operator: model.OpEq, Value: "42"}, true},
		{"eq missing", model.Condition{Field: "contact.phone", Operator: model.OpEq, Value: "x"}, false},
		{"neq", model.Condition{Field: "contact.source", Operator: model.OpNeq, Value: "referral"}, true},
		{"neq missing", model.Condition{Field: "contact.phone", Operator: model.OpNeq, Value: "x"}, true},
		{"contains string", model.Condition{Field: "message.body", Operator: model.OpContains, Value: "call me"}, true},
		{"contains list", model.Condition{Field: "contact.tags", Operator: model.OpContains, Value: "VIP"}, true},
		{"contains list miss", model.Condition{Field: "contact.tags", Operator: model.OpContains, Value: "wind"}, false},
		{"gt", model.Condition{Field: "contact.score", Operator: model.OpGt, Value: 40.0}, true},
		{"lt", model.Condition{Field: "contact.score", Operator: model.OpLt, Value: 40.0}, false},
		{"gt non-numeric", model.Condition{Field: "contact.status", Operator: model.OpGt, Value: 1}, false},
		{"in list", model.Condition{Field: "contact.source", Operator: model.OpIn, Value: []any{"web", "import"}}, true},
		{"in comma string", model.Condition{Field: "contact.source", Operator: model.OpIn, Value: "referral, web"}, true},
		{"in miss", model.Condition{Field: "contact.source", Operator: model.OpIn, Value: "referral"}, false},
		{"exists", model.Condition{Field: "contact.company", Operator: model.OpExists}, true},
		{"exists empty", model.Condition{Field: "contact.email", Operator: model.OpExists}, false},
		{"exists missing", model.Condition{Field: "ticket.id", Operator: model.OpExists}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MatchConditions([]model.Condition{tt.cond}, data))
		})
	}
}

func TestMatchConditions_AllMustHold(t *testing.T) {
	t.Parallel()

	data := map[string]any{"contact": map[string]any{"status": "lead", "source": "web"}}
	assert.True(t, MatchConditions(nil, data))
	assert.False(t, MatchConditions([]model.Condition{
		{Field: "contact.status", Operator: model.OpEq, Value: "lead"},
		{Field: "contact.source", Operator: model.OpEq, Value: "import"},
	}, data))
}
