package actions

// Kind 区分动作类别
// Kind discriminates the two action categories.
type Kind string

const (
	KindCommand Kind = "command"
	KindFile    Kind = "file"
)

// FileOp 文件动作的操作类型
// FileOp is the operation a file action performs.
type FileOp string

const (
	OpCreate FileOp = "create"
	OpModify FileOp = "modify"
	OpDelete FileOp = "delete"
)

// Action 从模型输出解析出的一条指令，解析后不可变
// Action is one instruction derived from model output. Immutable once parsed.
// Command actions carry Command; file actions carry Path, Content, Op and
// optionally the source code block's Language.
type Action struct {
	Kind        Kind
	Description string

	Command string

	Path     string
	Content  string
	Op       FileOp
	Language string
}

// Display 返回用于队列展示的一行文本
// Display returns the one-line text shown for this action in the queue:
// the model's description when present, otherwise a synthesized line.
func (a Action) Display() string {
	if a.Description != "" {
		return a.Description
	}
	switch a.Kind {
	case KindCommand:
		return a.Command
	case KindFile:
		switch a.Op {
		case OpModify:
			return "Modify " + a.Path
		case OpDelete:
			return "Delete " + a.Path
		default:
			return "Create " + a.Path
		}
	}
	return ""
}
