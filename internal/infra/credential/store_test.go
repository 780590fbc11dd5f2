package credential

import (
	"testing"
)

func TestHashPassword(t *testing.T) {
	tests := map[string]string{
		"password1": "0b14d501a594442a01c6859541bcb3e8164d183d32937b851835442f69d5c94e",
		"password2": "6cf615d5bcaac778352a8f1f3360d23f02f34ec182e259897fd6ce485d7870d4",
	}
	for password, want := range tests {
		if got := HashPassword(password); got != want {
			t.Errorf("HashPassword(%q) = %s, want %s", password, got, want)
		}
	}
}

func TestVerify(t *testing.T) {
	s := NewStore(map[string]string{
		"user1": HashPassword("password1"),
		"user2": " " + "6CF615D5BCAAC778352A8F1F3360D23F02F34EC182E259897FD6CE485D7870D4",
	})

	tests := []struct {
		username, password string
		want               bool
	}{
		{"user1", "password1", true},
		{"user2", "password2", true},
		{"user1", "password2", false},
		{"user3", "password1", false},
		{"", "", false},
		{"USER1", "password1", false},
	}
	for _, tt := range tests {
		if got := s.Verify(tt.username, tt.password); got != tt.want {
			t.Errorf("Verify(%q, %q) = %v, want %v", tt.username, tt.password, got, tt.want)
		}
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d", s.Len())
	}
}
