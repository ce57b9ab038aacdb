package auth

import (
	"testing"
	"time"
)

func TestSession_IsGuest(t *testing.T) {
	s := Session{Role: RoleGuest}
	if !s.IsGuest() {
		t.Fatalf("expected guest")
	}
	if (Session{Role: RoleUser}).IsGuest() {
		t.Fatalf("did not expect guest")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if (Session{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Fatalf("session in the future should not be expired")
	}
	if !(Session{ExpiresAt: now}).Expired(now) {
		t.Fatalf("session at expiry should be expired")
	}
}

func TestSession_User(t *testing.T) {
	s := Session{ID: "s", UserID: "u", Email: "e@example.com", FirstName: "Ada", Role: RoleAdmin}
	u := s.User()
	if u.ID != "u" || u.Email != "e@example.com" || u.Role != RoleAdmin {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestUser_DisplayName(t *testing.T) {
	cases := []struct {
		user User
		want string
	}{
		{User{ID: "u", FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{User{ID: "u", FirstName: "Ada"}, "Ada"},
		{User{ID: "u", Email: "ada@example.com"}, "ada@example.com"},
		{User{ID: "u"}, "u"},
	}
	for _, tc := range cases {
		if got := tc.user.DisplayName(); got != tc.want {
			t.Fatalf("DisplayName() = %q, want %q", got, tc.want)
		}
	}
}

func TestParseChangeKind(t *testing.T) {
	k, err := ParseChangeKind("SIGNED_OUT")
	if err != nil || k != ChangeSignedOut {
		t.Fatalf("ParseChangeKind = %q, %v", k, err)
	}
	if _, err := ParseChangeKind("bogus"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestChangeEvent_User(t *testing.T) {
	if (ChangeEvent{Kind: ChangeSignedOut}).User() != nil {
		t.Fatalf("expected nil user for absent session")
	}
	ev := ChangeEvent{Kind: ChangeSignedIn, Session: &Session{UserID: "u"}}
	if ev.User() == nil || ev.User().ID != "u" {
		t.Fatalf("expected user u")
	}
}
