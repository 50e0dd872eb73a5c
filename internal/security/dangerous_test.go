package security

import "testing"

func TestAssessCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		wantWarn bool
	}{
		{
			name:     "safe mkdir",
			cmd:      "mkdir -p src/lib",
			wantWarn: false,
		},
		{
			name:     "safe npm install",
			cmd:      "npm install express",
			wantWarn: false,
		},
		{
			name:     "destructive rm",
			cmd:      "rm -rf build",
			wantWarn: true,
		},
		{
			name:     "destructive mv",
			cmd:      "mv dist /tmp/dist",
			wantWarn: true,
		},
		{
			name:     "unparseable quote",
			cmd:      `echo "abc`,
			wantWarn: true,
		},
		{
			name:     "command substitution",
			cmd:      "echo $(cat secret.txt)",
			wantWarn: true,
		},
		{
			name:     "empty",
			cmd:      "   ",
			wantWarn: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessCommand(tt.cmd)
			if got.Dangerous != tt.wantWarn {
				t.Fatalf("AssessCommand(%q).Dangerous = %v, want %v", tt.cmd, got.Dangerous, tt.wantWarn)
			}
			if got.Dangerous && got.Reason == "" {
				t.Fatalf("AssessCommand(%q) flagged without a reason", tt.cmd)
			}
		})
	}
}
