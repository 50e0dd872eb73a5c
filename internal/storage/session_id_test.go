package storage

import (
	"regexp"
	"testing"
)

var sessIDRe = regexp.MustCompile(`^[a-z]+-[a-z]+-\d{1,4}$`)

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		id := NewSessionID()
		if id == "" {
			t.Fatal("NewSessionID returned empty")
		}
		if !sessIDRe.MatchString(id) {
			t.Fatalf("NewSessionID format unexpected: %q", id)
		}
		seen[id] = true
	}
	// 碰撞概率极低，64 次采样不应全部相同
	// Collisions are unlikely; 64 draws should not all repeat
	if len(seen) < 2 {
		t.Fatal("NewSessionID should produce different ids")
	}
}
