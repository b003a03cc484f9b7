package repository

import (
	"context"
	"time"

	"github.com/solarvest/platform/internal/model"
)

const threadCols = `id, tenant_id, contact_id, channel, subject, status, assigned_to, last_message_at, unread_count,
	message_count, deleted, deleted_at, created_at, updated_at`

func (r *Repository) CreateThread(ctx context.Context, t *model.CrmThread) error {
	return insert(ctx, r.db, "create thread", `
		INSERT INTO crm_threads (id, tenant_id, contact_id, channel, subject, status, assigned_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		t.ID, t.TenantID, t.ContactID, t.Channel, t.Subject, t.Status, t.AssignedTo, t.CreatedAt,
	)
}

func (r *Repository) GetThread(ctx context.Context, tenantID, id string) (*model.CrmThread, error) {
	return one[model.CrmThread](ctx, r.db,
		`SELECT `+threadCols+` FROM crm_threads WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id)
}

// FindOpenThread returns the most recent open thread for a contact on a channel.
func (r *Repository) FindOpenThread(ctx context.Context, tenantID, contactID string, ch model.Channel) (*model.CrmThread, error) {
	return one[model.CrmThread](ctx, r.db, `
		SELECT `+threadCols+` FROM crm_threads
		WHERE tenant_id = $1 AND contact_id = $2 AND channel = $3 AND status = 'open' AND NOT deleted
		ORDER BY created_at DESC LIMIT 1`, tenantID, contactID, ch)
}

func (r *Repository) ListThreads(ctx context.Context, tenantID string, f model.ThreadFilter, p model.Page) ([]*model.CrmThread, int64, error) {
	w := tenantScope(tenantID)
	eqIf(w, "contact_id", f.ContactID)
	eqIf(w, "status", f.Status)
	eqIf(w, "assigned_to", f.AssignedTo)
	if f.Unread {
		w.raw("unread_count > 0")
	}
	return list[model.CrmThread](ctx, r.db, "crm_threads", threadCols, w, "last_message_at DESC NULLS LAST, id", p)
}

func (r *Repository) SetThreadStatus(ctx context.Context, tenantID, id string, status model.ThreadStatus) error {
	return execOne(ctx, r.db, "set thread status", `
		UPDATE crm_threads SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, status)
}

func (r *Repository) SetThreadAssignee(ctx context.Context, tenantID, id, userID string) error {
	return execOne(ctx, r.db, "assign thread", `
		UPDATE crm_threads SET assigned_to = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id, userID)
}

func (r *Repository) MarkThreadRead(ctx context.Context, tenantID, id string, at time.Time) error {
	return r.WithTx(ctx, func(tx *Repository) error {
		if err := execOne(ctx, tx.db, "mark thread read", `
			UPDATE crm_threads SET unread_count = 0, updated_at = now()
			WHERE tenant_id = $1 AND id = $2 AND NOT deleted`, tenantID, id); err != nil {
			return err
		}
		_, err := tx.db.Exec(ctx, `
			UPDATE crm_messages SET read_at = $3, status = 'read'
			WHERE tenant_id = $1 AND thread_id = $2 AND direction = 'inbound' AND read_at IS NULL`, tenantID, id, at)
		return err
	})
}

func (r *Repository) DeleteThread(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, r.db, "crm_threads", tenantID, id)
}

const messageCols = `id, tenant_id, thread_id, contact_id, direction, channel, body, template_id, sender_id, status,
	sent_at, read_at, created_at`

// AppendMessage stores a message and bumps the thread counters in one transaction.
// Inbound messages increase unread_count and reopen closed threads.
func (r *Repository) AppendMessage(ctx context.Context, m *model.CrmMessage) error {
	return r.WithTx(ctx, func(tx *Repository) error {
		if err := insert(ctx, tx.db, "create message", `
			INSERT INTO crm_messages (id, tenant_id, thread_id, contact_id, direction, channel, body, template_id,
				sender_id, status, sent_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			m.ID, m.TenantID, m.ThreadID, m.ContactID, m.Direction, m.Channel, m.Body, m.TemplateID,
			m.SenderID, m.Status, m.SentAt, m.CreatedAt,
		); err != nil {
			return err
		}
		return execOne(ctx, tx.db, "bump thread", `
			UPDATE crm_threads SET
				message_count = message_count + 1,
				unread_count = unread_count + CASE WHEN $3 = 'inbound' THEN 1 ELSE 0 END,
				status = CASE WHEN $3 = 'inbound' AND status = 'closed' THEN 'open' ELSE status END,
				last_message_at = $4,
				updated_at = now()
			WHERE tenant_id = $1 AND id = $2 AND NOT deleted`,
			m.TenantID, m.ThreadID, string(m.Direction), m.SentAt)
	})
}

func (r *Repository) ListMessages(ctx context.Context, tenantID, threadID string) ([]*model.CrmMessage, error) {
	return all[model.CrmMessage](ctx, r.db, `
		SELECT `+messageCols+` FROM crm_messages
		WHERE tenant_id = $1 AND thread_id = $2
		ORDER BY sent_at, id`, tenantID, threadID)
}

// LastOutboundMessage returns the newest outbound message sent before at.
func (r *Repository) LastOutboundMessage(ctx context.Context, tenantID, threadID string, before time.Time) (*model.CrmMessage, error) {
	return one[model.CrmMessage](ctx, r.db, `
		SELECT `+messageCols+` FROM crm_messages
		WHERE tenant_id = $1 AND thread_id = $2 AND direction = 'outbound' AND sent_at <= $3
		ORDER BY sent_at DESC LIMIT 1`, tenantID, threadID, before)
}

const responseCols = `id, tenant_id, contact_id, message_id, template_id, channel, response_text, sentiment, sent_at,
	responded_at, created_at`

// CreateResponse returns ErrDuplicate when the message already has a response.
func (r *Repository) CreateResponse(ctx context.Context, resp *model.CommunicationResponse) error {
	return insert(ctx, r.db, "create response", `
		INSERT INTO communication_responses (id, tenant_id, contact_id, message_id, template_id, channel,
			response_text, sentiment, sent_at, responded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		resp.ID, resp.TenantID, resp.ContactID, resp.MessageID, resp.TemplateID, resp.Channel,
		resp.ResponseText, resp.Sentiment, resp.SentAt, resp.RespondedAt, resp.CreatedAt,
	)
}

func (r *Repository) ListResponses(ctx context.Context, tenantID string, f model.ResponseFilter, p model.Page) ([]*model.CommunicationResponse, int64, error) {
	w := &where{}
	w.eq("tenant_id", tenantID)
	eqIf(w, "contact_id", f.ContactID)
	eqIf(w, "channel", f.Channel)
	return list[model.CommunicationResponse](ctx, r.db, "communication_responses", responseCols, w, "responded_at DESC, id", p)
}
