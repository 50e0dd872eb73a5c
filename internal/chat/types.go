package chat

// ContentPart represents a part of a multi-modal message content
type ContentPart interface {
	isContentPart()
}

// TextContent represents text content in a multi-modal message
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (t TextContent) isContentPart() {}

// ImageContent represents image content in a multi-modal message
type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

func (i ImageContent) isContentPart() {}

// ImageURL represents an image URL in multi-modal messages
type ImageURL struct {
	URL    string `json:"url"`              // URL or data URL
	Detail string `json:"detail,omitempty"` // "low", "high", or "auto"
}

// Message is an OpenAI-compatible chat message.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content,omitempty"` // For backward compatibility
	MultiContent []ContentPart `json:"-"`                 // Multi-modal content (takes precedence over Content)
	Reasoning    string        `json:"reasoning,omitempty"`
}

// Text 返回消息的纯文本内容：多模态消息拼接全部文本分段，否则返回 Content。
// Text returns the plain-text content: for multi-modal messages the text
// parts are concatenated, otherwise Content is returned as-is.
func (m Message) Text() string {
	if len(m.MultiContent) == 0 {
		return m.Content
	}
	var out string
	for _, part := range m.MultiContent {
		if text, ok := part.(TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += text.Text
		}
	}
	return out
}

// ImageCount 返回多模态消息中的图片分段数量。
// ImageCount returns the number of image parts in a multi-modal message.
func (m Message) ImageCount() int {
	n := 0
	for _, part := range m.MultiContent {
		if _, ok := part.(ImageContent); ok {
			n++
		}
	}
	return n
}
