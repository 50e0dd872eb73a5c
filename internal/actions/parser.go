package actions

import (
	"encoding/xml"
	"regexp"
	"strings"

	"pilot/internal/logging"
)

// Placeholder 在展示文本中替换每个已匹配的 <actions> 块
// Placeholder replaces every matched <actions> block in the display text.
const Placeholder = "[Actions hidden - see action queue below]"

var actionsPattern = regexp.MustCompile(`(?s)<actions>(.*?)</actions>`)

// Parser 解析模型按契约输出的结构化动作块
// Parser extracts typed actions from the structured markup contract the
// model is prompted to emit.
type Parser struct {
	log logging.Logger
}

// NewParser 创建结构化动作解析器
// NewParser creates a structured action parser.
func NewParser(log logging.Logger) *Parser {
	if log == nil {
		log = logging.Nop()
	}
	return &Parser{log: log}
}

type xmlActionList struct {
	Actions []xmlAction `xml:"action"`
}

type xmlAction struct {
	Type        string `xml:"type,attr"`
	Description string `xml:"description"`
	Command     string `xml:"command"`
	Path        string `xml:"path"`
	Content     string `xml:"content"`
	Operation   string `xml:"operation"`
}

// Parse 提取全部结构化动作并返回清理后的展示文本。
// 每个匹配到的外层块无论内部是否解析成功都会被替换为 Placeholder；
// 单个块解析失败只丢弃该块，不影响其余块。没有块时原文原样返回。
// Parse extracts structured actions and returns the cleaned display text.
// Every matched outer block is replaced with Placeholder whether or not its
// inner markup decoded; a malformed block is dropped without aborting
// sibling blocks. With no block the input is returned unchanged.
func (p *Parser) Parse(response string) ([]Action, string) {
	matches := actionsPattern.FindAllStringIndex(response, -1)
	if len(matches) == 0 {
		return nil, response
	}

	var out []Action
	var b strings.Builder
	prev := 0
	for _, m := range matches {
		b.WriteString(response[prev:m[0]])
		b.WriteString(Placeholder)
		prev = m[1]

		block, err := decodeActionBlock(response[m[0]:m[1]])
		if err != nil {
			p.log.Warnf("skip malformed actions block: %v", err)
			continue
		}
		out = append(out, block...)
	}
	b.WriteString(response[prev:])
	return out, strings.TrimSpace(b.String())
}

func decodeActionBlock(block string) ([]Action, error) {
	var doc xmlActionList
	if err := xml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, err
	}

	var out []Action
	for _, xa := range doc.Actions {
		switch xa.Type {
		case "command":
			cmd := strings.TrimSpace(xa.Command)
			if cmd == "" {
				continue
			}
			out = append(out, Action{
				Kind:        KindCommand,
				Description: strings.TrimSpace(xa.Description),
				Command:     cmd,
			})
		case "file":
			path := strings.TrimSpace(xa.Path)
			if path == "" {
				continue
			}
			out = append(out, Action{
				Kind:        KindFile,
				Description: strings.TrimSpace(xa.Description),
				Path:        path,
				Content:     strings.TrimSpace(xa.Content),
				Op:          parseFileOp(xa.Operation),
			})
		}
	}
	return out, nil
}

// parseFileOp 未声明 operation 时默认 create
// parseFileOp defaults to create when no operation child is declared.
func parseFileOp(s string) FileOp {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "modify":
		return OpModify
	case "delete":
		return OpDelete
	default:
		return OpCreate
	}
}
