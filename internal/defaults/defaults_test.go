package defaults

import (
	"strings"
	"testing"
	"time"
)

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt()
	if prompt == "" {
		t.Fatal("SystemPrompt must be non-empty")
	}
	for _, needle := range []string{
		`<action type="command">`,
		`<action type="file">`,
		"CDATA",
		time.Now().Format("January 2, 2006"),
	} {
		if !strings.Contains(prompt, needle) {
			t.Fatalf("missing %q in system prompt", needle)
		}
	}
	if strings.Contains(prompt, "%s") {
		t.Fatal("unexpanded placeholder left in system prompt")
	}
}
