package i18n

// ZhCNMessages 简体中文消息目录
// ZhCNMessages Simplified Chinese message catalog
var ZhCNMessages = map[string]string{
	// TUI - 面板标题
	"panel.chat":  "对话",
	"panel.queue": "操作",
	"panel.logs":  "日志",

	// TUI - 侧边栏
	"sidebar.context": "上下文",
	"sidebar.model":   "模型",
	"sidebar.queue":   "队列",
	"sidebar.session": "会话",

	// TUI - 状态栏
	"status.workspace": "工作区",
	"status.ready":     "就绪",
	"status.streaming": "生成中...",
	"status.executing": "执行中...",
	"status.waiting":   "等待确认",

	// TUI - 输入
	"input.placeholder": "输入消息... (Shift+Enter 换行)",
	"input.submit_hint": "回车发送",

	// TUI - 快捷键提示
	"keys.tab":    "tab 切换面板",
	"keys.esc":    "esc 取消",
	"keys.ctrl_r": "ctrl+r 执行下一项",

	// 确认
	"confirm.title":    "执行该操作?",
	"confirm.yes":      "是",
	"confirm.always":   "是，本次会话不再询问",
	"confirm.no":       "否 (跳过)",
	"confirm.danger":   "⚠ 该命令可能有风险",
	"confirm.declined": "已被用户跳过",

	// 队列
	"queue.empty":     "没有待执行操作",
	"queue.completed": "已完成",
	"queue.next":      "下一项操作已就绪:",
	"queue.replaced":  "已丢弃旧的操作队列 (%d 项未执行)",

	// 上下文
	"context.tokens":    "Token: %d / %d (%.1f%%)",
	"context.messages":  "消息数: %d",
	"context.precise":   "精确",
	"context.estimated": "估算",

	// 压缩
	"compact.done":       "上下文已压缩",
	"compact.not_needed": "无需压缩",

	// 会话
	"session.new":    "新会话: %s",
	"session.loaded": "已加载会话: %s",
	"session.saved":  "会话已保存",
	"session.none":   "未找到会话",

	// 模型
	"model.current":  "当前模型: %s",
	"model.switched": "已切换模型: %s",

	// 错误
	"error.provider": "模型服务错误: %s",
	"error.execute":  "执行错误: %s",
	"error.session":  "会话错误: %s",

	// 启动
	"startup.welcome":   "pilot 已启动，工作区: %s",
	"startup.session":   "会话: %s 模型=%s",
	"startup.repl_mode": "REPL 模式运行中 (使用 --tui 启用完整 TUI)",
}
