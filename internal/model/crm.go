package model

import (
	"strings"
	"time"
)

type ContactSource string

const (
	SourceWeb      ContactSource = "web"
	SourceReferral ContactSource = "referral"
	SourceImport   ContactSource = "import"
	SourceCampaign ContactSource = "campaign"
	SourceManual   ContactSource = "manual"
)

var ContactSources = []ContactSource{SourceWeb, SourceReferral, SourceImport, SourceCampaign, SourceManual}

type ContactStatus string

const (
	ContactLead     ContactStatus = "lead"
	ContactProspect ContactStatus = "prospect"
	ContactCustomer ContactStatus = "customer"
	ContactChurned  ContactStatus = "churned"
)

var ContactStatuses = []ContactStatus{ContactLead, ContactProspect, ContactCustomer, ContactChurned}

// CrmContact is a person the business communicates with.
type CrmContact struct {
	ID              string        `json:"id" db:"id"`
	TenantID        string        `json:"tenant_id" db:"tenant_id"`
	FirstName       string        `json:"first_name" db:"first_name"`
	LastName        string        `json:"last_name" db:"last_name"`
	Email           string        `json:"email,omitempty" db:"email"`
	Phone           string        `json:"phone,omitempty" db:"phone"`
	Company         string        `json:"company,omitempty" db:"company"`
	Source          ContactSource `json:"source" db:"source"`
	Status          ContactStatus `json:"status" db:"status"`
	Tags            []string      `json:"tags" db:"tags"`
	OwnerID         *string       `json:"owner_id,omitempty" db:"owner_id"`
	InvestorID      *string       `json:"investor_id,omitempty" db:"investor_id"`
	LastContactedAt *time.Time    `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	Deleted         bool          `json:"-" db:"deleted"`
	DeletedAt       *time.Time    `json:"-" db:"deleted_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

func (c *CrmContact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// HasTag is case-insensitive.
func (c *CrmContact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func (c *CrmContact) ApplyDefaults() {
	if c.Source == "" {
		c.Source = SourceManual
	}
	if c.Status == "" {
		c.Status = ContactLead
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	c.Email = NormalizeEmail(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
}

func (c *CrmContact) Validate() error {
	var v ValidationErrors
	if c.Email == "" && c.Phone == "" {
		v.Add("email", "email or phone is required")
	}
	v.Email("email", c.Email)
	v.MaxLen("first_name", c.FirstName, 100)
	v.MaxLen("last_name", c.LastName, 100)
	v.MaxLen("company", c.Company, 200)
	OneOf(&v, "source", c.Source, ContactSources)
	OneOf(&v, "status", c.Status, ContactStatuses)
	if len(c.Tags) > 50 {
		v.Add("tags", "must have at most 50 entries")
	}
	return v.Err()
}

type ContactFilter struct {
	Status  ContactStatus
	OwnerID string
	Tag     string
	Query   string
}

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeb      Channel = "web"
)

var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelWeb}

type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadClosed   ThreadStatus = "closed"
	ThreadArchived ThreadStatus = "archived"
)

var ThreadStatuses = []ThreadStatus{ThreadOpen, ThreadClosed, ThreadArchived}

// CrmThread groups messages with one contact on one channel.
type CrmThread struct {
	ID            string       `json:"id" db:"id"`
	TenantID      string       `json:"tenant_id" db:"tenant_id"`
	ContactID     string       `json:"contact_id" db:"contact_id"`
	Channel       Channel      `json:"channel" db:"channel"`
	Subject       string       `json:"subject,omitempty" db:"subject"`
	Status        ThreadStatus `json:"status" db:"status"`
	AssignedTo    *string      `json:"assigned_to,omitempty" db:"assigned_to"`
	LastMessageAt *time.Time   `json:"last_message_at,omitempty" db:"last_message_at"`
	UnreadCount   int          `json:"unread_count" db:"unread_count"`
	MessageCount  int          `json:"message_count" db:"message_count"`
	Deleted       bool         `json:"-" db:"deleted"`
	DeletedAt     *time.Time   `json:"-" db:"deleted_at"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

func (t *CrmThread) Validate() error {
	var v ValidationErrors
	v.Required("contact_id", t.ContactID)
	OneOf(&v, "channel", t.Channel, Channels)
	OneOf(&v, "status", t.Status, ThreadStatuses)
	v.MaxLen("subject", t.Subject, 300)
	return v.Err()
}

type ThreadFilter struct {
	ContactID  string
	Status     ThreadStatus
	AssignedTo string
	Unread     bool
}

// ThreadWithMessages is the detail view of a thread.
type ThreadWithMessages struct {
	*CrmThread
	Messages []*CrmMessage `json:"messages"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

var MessageStatuses = []MessageStatus{MessageQueued, MessageSent, MessageDelivered, MessageRead, MessageFailed}

// CrmMessage is a single inbound or outbound communication.
type CrmMessage struct {
	ID         string        `json:"id" db:"id"`
	TenantID   string        `json:"tenant_id" db:"tenant_id"`
	ThreadID   string        `json:"thread_id" db:"thread_id"`
	ContactID  string        `json:"contact_id" db:"contact_id"`
	Direction  Direction     `json:"direction" db:"direction"`
	Channel    Channel       `json:"channel" db:"channel"`
	Body       string        `json:"body" db:"body"`
	TemplateID *string       `json:"template_id,omitempty" db:"template_id"`
	SenderID   *string       `json:"sender_id,omitempty" db:"sender_id"`
	Status     MessageStatus `json:"status" db:"status"`
	SentAt     time.Time     `json:"sent_at" db:"sent_at"`
	ReadAt     *time.Time    `json:"read_at,omitempty" db:"read_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

func (m *CrmMessage) Validate() error {
	var v ValidationErrors
	v.Required("body", m.Body)
	v.MaxLen("body", m.Body, 10000)
	OneOf(&v, "direction", m.Direction, []Direction{DirectionInbound, DirectionOutbound})
	OneOf(&v, "channel", m.Channel, Channels)
	OneOf(&v, "status", m.Status, MessageStatuses)
	return v.Err()
}

// CrmTemplate is a reusable message body.
type CrmTemplate struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	Name       string     `json:"name" db:"name"`
	Channel    Channel    `json:"channel" db:"channel"`
	Category   string     `json:"category,omitempty" db:"category"`
	Subject    string     `json:"subject,omitempty" db:"subject"`
	Body       string     `json:"body" db:"body"`
	Variables  []string   `json:"variables" db:"variables"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	UsageCount int64      `json:"usage_count" db:"usage_count"`
	Deleted    bool       `json:"-" db:"deleted"`
	DeletedAt  *time.Time `json:"-" db:"deleted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (t *CrmTemplate) Validate() error {
	var v ValidationErrors
	v.Required("name", t.Name)
	v.MaxLen("name", t.Name, 100)
	OneOf(&v, "channel", t.Channel, Channels)
	v.Required("body", t.Body)
	v.MaxLen("body", t.Body, 10000)
	v.MaxLen("subject", t.Subject, 300)
	return v.Err()
}

type TemplateFilter struct {
	Channel  Channel
	Category string
	Active   *bool
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

// CommunicationResponse links an inbound reply to the outbound message it answers.
type CommunicationResponse struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	ContactID    string    `json:"contact_id" db:"contact_id"`
	MessageID    string    `json:"message_id" db:"message_id"`
	TemplateID   *string   `json:"template_id,omitempty" db:"template_id"`
	Channel      Channel   `json:"channel" db:"channel"`
	ResponseText string    `json:"response_text" db:"response_text"`
	Sentiment    Sentiment `json:"sentiment" db:"sentiment"`
	SentAt       time.Time `json:"sent_at" db:"sent_at"`
	RespondedAt  time.Time `json:"responded_at" db:"responded_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ResponseTime is the delay between the outbound message and the reply.
func (r *CommunicationResponse) ResponseTime() time.Duration {
	if r.RespondedAt.Before(r.SentAt) {
		return 0
	}
	return r.RespondedAt.Sub(r.SentAt)
}

type CommunicationResponseView struct {
	*CommunicationResponse
	ResponseSeconds float64 `json:"response_seconds"`
}

func (r *CommunicationResponse) ToResponse() CommunicationResponseView {
	return CommunicationResponseView{CommunicationResponse: r, ResponseSeconds: r.ResponseTime().Seconds()}
}

type ResponseFilter struct {
	ContactID string
	Channel   Channel
}
