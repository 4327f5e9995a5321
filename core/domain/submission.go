package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SubmissionStatus is the lifecycle label of a submission. Reviewers may set any
// label; only the values below have meaning to the service itself.
type SubmissionStatus = string

const (
	StatusInbox    SubmissionStatus = "inbox"
	StatusReviewed SubmissionStatus = "reviewed"
	StatusArchived SubmissionStatus = "archived"
	StatusRewarded SubmissionStatus = "rewarded" // terminal, set by the reward flow only

	MaxStatusLength = 32
)

// Proximity tells how close the sender is to the problem they describe.
type Proximity = string

const (
	ProximityHigh    Proximity = "High"
	ProximityMedium  Proximity = "Medium"
	ProximityLow     Proximity = "Low"
	ProximityUnknown Proximity = "Unknown"
	ProximityError   Proximity = "Error"  // classifier call failed
	ProximitySystem  Proximity = "System" // classifier not configured
)

const (
	// CategorySystem marks records whose classification is a sentinel, not a real result.
	CategorySystem  = "System"
	CategoryGeneral = "General"

	// WarningMarker prefixes titles of records the classifier could not score.
	WarningMarker = "⚠️ "

	ExcerptLength = 400
	DateLayout    = "2. Jan 2006"
)

// Submission is one scored suggestion derived from one inbound message.
type Submission struct {
	ID             int64            `json:"id" bson:"id" db:"id"`
	Category       string           `json:"category" bson:"category" db:"category"`
	Title          string           `json:"title" bson:"title" db:"title"`
	Content        string           `json:"content" bson:"content" db:"content"`
	Score          int              `json:"aiScore" bson:"score" db:"score"`
	Scored         bool             `json:"scored" bson:"scored" db:"scored"`
	Proximity      Proximity        `json:"proximity" bson:"proximity" db:"proximity"`
	Status         SubmissionStatus `json:"status" bson:"status" db:"status"`
	Date           string           `json:"date" bson:"date" db:"date"`
	GroupCount     int              `json:"groupCount" bson:"group_count" db:"group_count"`
	Analysis       string           `json:"analysis" bson:"analysis" db:"analysis"`
	ContactAddress string           `json:"contact_address,omitempty" bson:"contact_address" db:"contact_address"`
}

// PublicSubmission is the only shape a submission leaves the service in.
// It has no contact address field by construction.
type PublicSubmission struct {
	ID         int64            `json:"id"`
	Category   string           `json:"category"`
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	Score      int              `json:"aiScore"`
	Scored     bool             `json:"scored"`
	Proximity  Proximity        `json:"proximity"`
	Status     SubmissionStatus `json:"status"`
	Date       string           `json:"date"`
	GroupCount int              `json:"groupCount"`
	Analysis   string           `json:"analysis"`
}

// Public strips the contact address.
func (s Submission) Public() PublicSubmission {
	return PublicSubmission{
		ID:         s.ID,
		Category:   s.Category,
		Title:      s.Title,
		Content:    s.Content,
		Score:      s.Score,
		Scored:     s.Scored,
		Proximity:  s.Proximity,
		Status:     s.Status,
		Date:       s.Date,
		GroupCount: s.GroupCount,
		Analysis:   s.Analysis,
	}
}

// PublicList projects a list, keeping its order.
func PublicList(items []Submission) []PublicSubmission {
	out := make([]PublicSubmission, len(items))
	for i, s := range items {
		out[i] = s.Public()
	}
	return out
}

// DedupKey is the exact (title, contact address) pair used to suppress re-ingestion.
type DedupKey struct {
	Title          string
	ContactAddress string
}

// Key is the subject the record was built from and its sender. Only unscored
// records carry the warning marker added by NewSubmission, so only they lose it.
func (s Submission) Key() DedupKey {
	title := s.Title
	if !s.Scored {
		title = strings.TrimPrefix(title, WarningMarker)
	}
	return DedupKey{Title: title, ContactAddress: s.ContactAddress}
}

// InboundMessage is a mailbox message as seen by the pipeline.
type InboundMessage struct {
	UID      uint32
	Subject  string
	From     string
	TextBody string
	HTMLBody string // already reduced to text by the mailbox adapter
}

// Key is the dedup key a record built from m would have.
func (m InboundMessage) Key() DedupKey {
	return DedupKey{Title: strings.TrimSpace(m.Subject), ContactAddress: strings.TrimSpace(m.From)}
}

// Body returns the plain-text body, falling back to the HTML text.
func (m InboundMessage) Body() string {
	if strings.TrimSpace(m.TextBody) != "" {
		return m.TextBody
	}
	return m.HTMLBody
}

// Classification is the classifier's verdict for one message.
type Classification struct {
	Score     int    `json:"score"`
	Summary   string `json:"summary"`
	Category  string `json:"category"`
	Proximity string `json:"proximity"`
}

// IsSentinel reports whether c is a degraded result rather than a real score.
func (c Classification) IsSentinel() bool {
	return c.Category == CategorySystem
}

// NewSubmission builds a fresh inbox record from a message and its classification.
// The id is assigned by the store.
func NewSubmission(msg InboundMessage, c Classification, now time.Time) Submission {
	title := strings.TrimSpace(msg.Subject)
	if c.IsSentinel() {
		title = WarningMarker + title
	}

	category := strings.TrimSpace(c.Category)
	if category == "" {
		category = CategoryGeneral
	}

	return Submission{
		Category:       category,
		Title:          title,
		Content:        Excerpt(msg.Body(), ExcerptLength),
		Score:          ClampScore(c.Score),
		Scored:         !c.IsSentinel(),
		Proximity:      NormalizeProximity(c.Proximity),
		Status:         StatusInbox,
		Date:           now.Format(DateLayout),
		GroupCount:     0,
		Analysis:       strings.TrimSpace(c.Summary),
		ContactAddress: strings.TrimSpace(msg.From),
	}
}

// ClampScore forces a score into [0,100].
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// NormalizeProximity maps free-form classifier output onto the known labels.
func NormalizeProximity(p string) Proximity {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return ProximityHigh
	case "medium":
		return ProximityMedium
	case "low":
		return ProximityLow
	case "error":
		return ProximityError
	case "system", "none":
		return ProximitySystem
	default:
		return ProximityUnknown
	}
}

// Excerpt collapses whitespace and cuts text to max runes, appending "..." when cut.
func Excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// MaskAddress hides the local part of an address for logs.
func MaskAddress(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
