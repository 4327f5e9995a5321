package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNewSubmission(t *testing.T) {
	now := time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		msg           InboundMessage
		class         Classification
		wantTitle     string
		wantScore     int
		wantScored    bool
		wantCategory  string
		wantProximity Proximity
	}{
		{
			name:          "scored message keeps its subject",
			msg:           InboundMessage{Subject: "Double work in the filing system", From: "a@firm.example", TextBody: "We lose 30 minutes a day"},
			class:         Classification{Score: 94, Category: "IT", Proximity: "High", Summary: "Critical"},
			wantTitle:     "Double work in the filing system",
			wantScore:     94,
			wantScored:    true,
			wantCategory:  "IT",
			wantProximity: ProximityHigh,
		},
		{
			name:          "sentinel result is marked",
			msg:           InboundMessage{Subject: "Coffee machine", From: "b@firm.example"},
			class:         Classification{Score: 0, Category: CategorySystem, Proximity: "none"},
			wantTitle:     WarningMarker + "Coffee machine",
			wantScore:     0,
			wantScored:    false,
			wantCategory:  CategorySystem,
			wantProximity: ProximitySystem,
		},
		{
			name:          "out of range score and missing fields get defaults",
			msg:           InboundMessage{Subject: "Parking", From: "c@firm.example"},
			class:         Classification{Score: 140},
			wantTitle:     "Parking",
			wantScore:     100,
			wantScored:    true,
			wantCategory:  CategoryGeneral,
			wantProximity: ProximityUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSubmission(tt.msg, tt.class, now)

			if s.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", s.Title, tt.wantTitle)
			}
			if s.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", s.Score, tt.wantScore)
			}
			if s.Scored != tt.wantScored {
				t.Errorf("scored = %v, want %v", s.Scored, tt.wantScored)
			}
			if s.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", s.Category, tt.wantCategory)
			}
			if s.Proximity != tt.wantProximity {
				t.Errorf("proximity = %q, want %q", s.Proximity, tt.wantProximity)
			}
			if s.Status != StatusInbox {
				t.Errorf("status = %q, want inbox", s.Status)
			}
			if s.GroupCount != 0 {
				t.Errorf("group count = %d, want 0", s.GroupCount)
			}
			if s.Date != "10. Feb 2026" {
				t.Errorf("date = %q", s.Date)
			}
			if s.ContactAddress != tt.msg.From {
				t.Errorf("contact = %q, want %q", s.ContactAddress, tt.msg.From)
			}
		})
	}
}

func TestPublicProjectionHasNoContactAddress(t *testing.T) {
	s := Submission{ID: 1, Title: "Idea", ContactAddress: "secret@firm.example"}

	data, err := json.Marshal(PublicList([]Submission{s}))
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	if strings.Contains(body, "secret@firm.example") {
		t.Fatalf("contact address leaked: %s", body)
	}
	if strings.Contains(body, "contact") {
		t.Fatalf("contact field leaked: %s", body)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"short", "Hello world", 100, "Hello world"},
		{"whitespace collapsed", "Hello\n\n   world\t!", 100, "Hello world !"},
		{"cut", "Hello world, this is long", 11, "Hello world..."},
		{"runes not bytes", "ææææææ", 3, "æææ..."},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.text, tt.max); got != tt.want {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestInboundMessageBodyFallsBackToHTML(t *testing.T) {
	m := InboundMessage{TextBody: "  \n", HTMLBody: "from html"}
	if got := m.Body(); got != "from html" {
		t.Errorf("Body() = %q, want html fallback", got)
	}

	m.TextBody = "plain"
	if got := m.Body(); got != "plain" {
		t.Errorf("Body() = %q, want plain", got)
	}
}

func TestMaskAddress(t *testing.T) {
	if got := MaskAddress("jens@firm.example"); got != "j***@firm.example" {
		t.Errorf("got %q", got)
	}
	if got := MaskAddress("nobody"); got != "***" {
		t.Errorf("got %q", got)
	}
}

func TestDedupKeyMatchesSourceMessage(t *testing.T) {
	sentinel := Classification{Category: CategorySystem, Proximity: ProximityError}
	scored := Classification{Score: 70, Category: "IT", Proximity: ProximityHigh}
	plain := InboundMessage{Subject: " Idea ", From: "x@corp.example"}
	marked := InboundMessage{Subject: WarningMarker + "Idea", From: "x@corp.example"}

	tests := []struct {
		name string
		msg  InboundMessage
		c    Classification
	}{
		{"degraded record", plain, sentinel},
		{"scored record", plain, scored},
		{"scored subject with marker", marked, scored},
		{"degraded subject with marker", marked, sentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewSubmission(tt.msg, tt.c, time.Now())
			if rec.Key() != tt.msg.Key() {
				t.Errorf("record key %+v does not match message key %+v", rec.Key(), tt.msg.Key())
			}
		})
	}
}

func TestDedupKeyKeepsMarkerOfScoredSubject(t *testing.T) {
	scored := Classification{Score: 70, Category: "IT"}
	marked := NewSubmission(InboundMessage{Subject: WarningMarker + "Idea", From: "x@corp.example"}, scored, time.Now())
	plain := InboundMessage{Subject: "Idea", From: "x@corp.example"}

	if marked.Key() == plain.Key() {
		t.Errorf("a subject starting with the marker must not collide with %q", plain.Subject)
	}
}
