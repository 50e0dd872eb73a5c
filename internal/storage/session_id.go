package storage

import (
	"crypto/rand"
	"fmt"
)

// 可读会话 ID 的词表 / Word lists for readable session IDs
var (
	sessionAdjectives = []string{
		"bold", "calm", "eager", "fuzzy", "jolly", "keen",
		"lively", "merry", "nimble", "quiet", "sunny", "witty",
	}
	sessionNouns = []string{
		"otter", "falcon", "harbor", "meadow", "pebble",
		"ridge", "sparrow", "thicket", "willow", "zephyr",
	}
)

// NewSessionID 生成形如 eager-falcon-4821 的会话 ID
// NewSessionID generates a session ID like eager-falcon-4821
func NewSessionID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	adj := sessionAdjectives[int(buf[0])%len(sessionAdjectives)]
	noun := sessionNouns[int(buf[1])%len(sessionNouns)]
	num := (int(buf[2])<<8 | int(buf[3])) % 10000
	return fmt.Sprintf("%s-%s-%d", adj, noun, num)
}
