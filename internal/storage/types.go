package storage

// SessionMeta 会话元数据
// SessionMeta holds session metadata
type SessionMeta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Model     string `json:"model"`
	CWD       string `json:"cwd"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ActionEntry 记录一条已执行的队列动作
// ActionEntry records one executed queue action
type ActionEntry struct {
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id"`
	Kind      string `json:"kind"`
	Display   string `json:"display"`
	Detail    string `json:"detail"`
	Status    string `json:"status"`
	Result    string `json:"result"`
	Error     string `json:"error"`
}
