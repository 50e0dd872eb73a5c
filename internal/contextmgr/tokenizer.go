package contextmgr

import (
	"strings"
	"sync"
	"unicode"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenCounter 统一的计数策略接口：精确编码器与启发式估算可互换
// TokenCounter abstracts token counting so the precise encoder and the
// heuristic estimate are interchangeable. Callers must not assume exactness.
type TokenCounter interface {
	CountText(text string) int
	IsPrecise() bool
}

// Tokenizer 基于 tiktoken 的计数器，编码表不可用时退回启发式估算
// Tokenizer counts tokens with tiktoken and falls back to a character
// heuristic when the encoding table cannot be loaded.
type Tokenizer struct {
	mu           sync.Mutex
	encoder      *tiktoken.Tiktoken
	fallback     bool
	encodingName string
}

// NewTokenizer 按编码名创建计数器；加载失败时进入启发式模式而非报错
// NewTokenizer builds a counter for the given encoding name. Load failure
// switches to heuristic mode instead of returning an error.
func NewTokenizer(encodingName string) *Tokenizer {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return &Tokenizer{fallback: true, encodingName: encodingName}
	}
	return &Tokenizer{encoder: enc, encodingName: encodingName}
}

// NewTokenizerForModel 根据模型名选择编码表
// NewTokenizerForModel picks the encoding table for a model name.
func NewTokenizerForModel(model string) *Tokenizer {
	return NewTokenizer(modelToEncoding(model))
}

// CountText 统计一段文本的 token 数
// CountText counts tokens in a piece of text.
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback || t.encoder == nil {
		return heuristicTokenCount(text)
	}
	// tiktoken 的 Encode 不保证并发安全
	// tiktoken's Encode is not guaranteed safe for concurrent use
	t.mu.Lock()
	tokens := t.encoder.Encode(text, nil, nil)
	t.mu.Unlock()
	return len(tokens)
}

// IsPrecise 返回当前是否使用精确编码器
// IsPrecise reports whether the precise encoder is in use.
func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback && t.encoder != nil
}

// EncodingName 返回使用的编码表名称
// EncodingName returns the encoding table name in use.
func (t *Tokenizer) EncodingName() string {
	return t.encodingName
}

// heuristicTokenCount 按字符估算：CJK 约 1.5 token/字，其余约 0.25 token/字符
// heuristicTokenCount estimates by character class: roughly 1.5 tokens per
// CJK character and 0.25 per other character, never less than 1 for
// non-empty text.
func heuristicTokenCount(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	count := int(float64(cjk)*1.5 + float64(other)*0.25)
	if count < 1 {
		count = 1
	}
	return count
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// modelToEncoding 模型名到编码表的映射；未知模型使用 cl100k_base
// modelToEncoding maps a model name to its encoding table; unknown models
// use cl100k_base.
func modelToEncoding(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.Contains(m, "gpt-4o"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}
