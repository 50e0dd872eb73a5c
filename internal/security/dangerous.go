package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var destructiveCmdPattern = regexp.MustCompile(`(^|[\s;&|()])(rm|mv|chmod|chown|dd|mkfs|shutdown|reboot)([\s;&|()]|$)`)

// Risk 对一条命令动作的风险评估，在确认提示里作为警示标注展示。
// 评估本身从不阻止执行，逐项确认才是唯一的闸门。
// Risk is the assessment shown as a warning annotation in the confirmation
// prompt. The assessment never blocks execution; per-item confirmation is
// the only gate.
type Risk struct {
	Dangerous bool
	Reason    string
}

// AssessCommand 识别破坏性命令；无法解析的命令宁严勿松，一律标注。
// AssessCommand flags destructive commands. Commands that cannot be parsed
// are flagged rather than silently allowed.
func AssessCommand(command string) Risk {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Risk{}
	}

	if strings.Contains(trimmed, "$(") || strings.Contains(trimmed, "`") {
		return Risk{
			Dangerous: true,
			Reason:    "contains command substitution",
		}
	}

	if _, err := parseShellWords(trimmed); err != nil {
		return Risk{
			Dangerous: true,
			Reason:    "cannot parse command",
		}
	}

	if destructiveCmdPattern.MatchString(trimmed) {
		return Risk{
			Dangerous: true,
			Reason:    "matches destructive command pattern",
		}
	}

	return Risk{}
}

func parseShellWords(input string) ([]string, error) {
	var (
		out         []string
		cur         strings.Builder
		inSingle    bool
		inDouble    bool
		escaped     bool
		justFlushed bool
	)

	flush := func() {
		if cur.Len() > 0 || justFlushed {
			out = append(out, cur.String())
			cur.Reset()
			justFlushed = false
		}
	}

	for _, r := range input {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			justFlushed = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			justFlushed = true
		case isSpace(r) && !inSingle && !inDouble:
			flush()
		default:
			cur.WriteRune(r)
			justFlushed = false
		}
	}

	if escaped {
		return nil, errors.New("dangling escape")
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unmatched quote")
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
