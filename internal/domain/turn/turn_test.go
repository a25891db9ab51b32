package turn

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, err := New("t-1", User, "what is a channel", now, []string{"doc-7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ID() != "t-1" {
		t.Errorf("ID() = %q", tr.ID())
	}
	if tr.Role() != User {
		t.Errorf("Role() = %q", tr.Role())
	}
	if tr.Text() != "what is a channel" {
		t.Errorf("Text() = %q", tr.Text())
	}
	if !tr.CreatedAt().Equal(now) {
		t.Errorf("CreatedAt() = %v", tr.CreatedAt())
	}
	if len(tr.ResultIDs()) != 1 || tr.ResultIDs()[0] != "doc-7" {
		t.Errorf("ResultIDs() = %v", tr.ResultIDs())
	}
}

func TestNew_DefaultsCreatedAt(t *testing.T) {
	tr, err := New("t-1", Assistant, "answer", time.Time{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.CreatedAt().IsZero() {
		t.Error("CreatedAt() is zero, want defaulted")
	}
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name string
		id   string
		role Role
		text string
	}{
		{"empty id", "", User, "hello"},
		{"invalid role", "t-1", "system", "hello"},
		{"empty text", "t-1", User, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, tc.role, tc.text, time.Time{}, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
