package model

import "time"

type EmailStatus string

const (
	EmailDraft     EmailStatus = "draft"
	EmailScheduled EmailStatus = "scheduled"
	EmailSent      EmailStatus = "sent"
	EmailOpened    EmailStatus = "opened"
	EmailFailed    EmailStatus = "failed"
)

type Pattern string

const (
	PatternNone    Pattern = "none"
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
)

// RecurrenceSpec describes how a scheduled email repeats. OccurrenceCount is
// the number of times the series has already fired; NextScheduledAt is
// derived and rewritten by the runner on every firing.
type RecurrenceSpec struct {
	Pattern         Pattern    `json:"pattern"`
	Interval        int        `json:"interval"`
	OccurrenceCount int        `json:"occurrenceCount"`
	MaxOccurrences  *int       `json:"maxOccurrences,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	NextScheduledAt *time.Time `json:"nextScheduledAt,omitempty"`
	ParentEmailID   string     `json:"parentEmailId,omitempty"`
}

type ScheduledEmail struct {
	ID              string          `json:"id"`
	Subject         string          `json:"subject"`
	Body            string          `json:"body"`
	Recipient       string          `json:"recipient"`
	Status          EmailStatus     `json:"status"`
	ScheduledAt     *time.Time      `json:"scheduledAt,omitempty"`
	SentAt          *time.Time      `json:"sentAt,omitempty"`
	OpenedAt        *time.Time      `json:"openedAt,omitempty"`
	OpenCount       int             `json:"openCount"`
	TrackingEnabled bool            `json:"trackingEnabled"`
	Recurrence      *RecurrenceSpec `json:"recurrence,omitempty"`
	ContactID       string          `json:"contactId,omitempty"`
	DealID          string          `json:"dealId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Activity is a write-once audit record; nothing mutates one after creation.
type Activity struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	ContactID string            `json:"contactId,omitempty"`
	DealID    string            `json:"dealId,omitempty"`
	Subject   string            `json:"subject"`
	Notes     string            `json:"notes,omitempty"`
	CreatedBy string            `json:"createdBy"`
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type ResourcePermission struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

type APIKey struct {
	ID                  string               `json:"id"`
	Key                 string               `json:"key"`
	Permissions         []string             `json:"permissions"`
	ResourcePermissions []ResourcePermission `json:"resourcePermissions,omitempty"`
	IsActive            bool                 `json:"isActive"`
	LastUsedAt          *time.Time           `json:"lastUsedAt,omitempty"`
}

type Webhook struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"secret"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type WebhookLog struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhookId"`
	Event        string    `json:"event"`
	Payload      string    `json:"payload"`
	StatusCode   int       `json:"statusCode"`
	ResponseTime int64     `json:"responseTime"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Deal struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Value     float64   `json:"value"`
	Stage     string    `json:"stage"`
	ContactID string    `json:"contactId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ContactID   string     `json:"contactId,omitempty"`
	DealID      string     `json:"dealId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
