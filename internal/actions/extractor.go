package actions

import (
	"regexp"
	"strings"

	"pilot/internal/logging"
)

// headerWindow 标题行与代码块之间允许的最大行距
// headerWindow caps how many lines may separate a path-looking header line
// from the code block it introduces.
const headerWindow = 10

var (
	codeBlockPattern       = regexp.MustCompile("(?s)```(\\w+)?\\s*\\n(.*?)```")
	filenameCommentPattern = regexp.MustCompile(`(?i)#\s*(?:filename|file):\s*([\w\-./]+)`)
	commandVerbPattern     = regexp.MustCompile(`\b(?:mkdir|touch|cp|mv|cd|npm|npx|cdk|node)\b`)

	filenameMentionPattern = regexp.MustCompile(`\b([\w\-./]+\.(?:py|js|ts|java|cpp|cs|c|go|rs|rb|php|swift|kt|scala|sh|sql|html|css|xml|json|yaml|yml|toml|ini|md|txt))\b`)

	headerLinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^#{1,3}\s*(.+?)$`),
		regexp.MustCompile(`^\*\*(.+?)\*\*$`),
		regexp.MustCompile("^`(.+?)`$"),
		regexp.MustCompile(`^(.+?):?\s*$`),
	}

	likelyActionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)create.*file`),
		regexp.MustCompile(`(?i)creating.*\.json`),
		regexp.MustCompile(`(?i)create.*\.ts`),
		regexp.MustCompile(`(?i)create.*\.py`),
		regexp.MustCompile(`(?i)package\.json.*:`),
		regexp.MustCompile(`(?i)tsconfig\.json.*:`),
		regexp.MustCompile("(?i)```(?:bash|sh|shell)"),
		regexp.MustCompile(`(?i)run.*command`),
		regexp.MustCompile(`(?i)execute.*:`),
		regexp.MustCompile(`(?i)mkdir\s+-p`),
		regexp.MustCompile(`(?i)npm\s+init`),
		regexp.MustCompile(`(?i)npm\s+install`),
	}
)

// knownBareFilenames 无扩展名也视为文件路径的名字
// knownBareFilenames are extensionless names still treated as file paths.
var knownBareFilenames = map[string]bool{
	"Makefile":    true,
	"Dockerfile":  true,
	"Rakefile":    true,
	"Gemfile":     true,
	"Jenkinsfile": true,
	"Procfile":    true,
	"Vagrantfile": true,
}

// CodeBlock 从响应中提取的一个围栏代码块
// CodeBlock is one fenced code block extracted from a response. StartLine
// and EndLine are the 0-based lines of the opening and closing fences.
type CodeBlock struct {
	Language  string
	Content   string
	Filename  string
	StartLine int
	EndLine   int
}

// Document 预扫描的响应文本，供各提取策略共享
// Document is a response scanned once and shared by extraction strategies.
type Document struct {
	Text   string
	Lines  []string
	Blocks []CodeBlock
}

// ParseDocument 扫描响应，提取全部代码块并记录行号。
// 块内的 "# filename: x" 注释被摘出并从内容中移除。
// ParseDocument scans a response, extracting fenced code blocks with line
// numbers. An embedded "# filename: x" comment is lifted out of the block
// content into Filename.
func ParseDocument(text string) *Document {
	doc := &Document{Text: text, Lines: strings.Split(text, "\n")}
	for _, m := range codeBlockPattern.FindAllStringSubmatchIndex(text, -1) {
		lang := "text"
		if m[2] >= 0 && m[3] > m[2] {
			lang = text[m[2]:m[3]]
		}
		content := text[m[4]:m[5]]

		filename := ""
		if fm := filenameCommentPattern.FindStringSubmatch(content); fm != nil {
			filename = fm[1]
			content = strings.TrimSpace(filenameCommentPattern.ReplaceAllString(content, ""))
		}

		doc.Blocks = append(doc.Blocks, CodeBlock{
			Language:  lang,
			Content:   content,
			Filename:  filename,
			StartLine: strings.Count(text[:m[0]], "\n"),
			EndLine:   strings.Count(text[:m[1]], "\n"),
		})
	}
	return doc
}

func (d *Document) insideBlock(line int) bool {
	for _, b := range d.Blocks {
		if line >= b.StartLine && line <= b.EndLine {
			return true
		}
	}
	return false
}

// ClaimSet 记录已被配对的代码块下标，防止重复使用
// ClaimSet tracks which block indexes are already paired with an action, so
// no block ever backs two actions.
type ClaimSet struct {
	used map[int]bool
}

func newClaimSet() *ClaimSet { return &ClaimSet{used: make(map[int]bool)} }

// Claim 标记下标已被占用 / Claim marks index i as consumed.
func (c *ClaimSet) Claim(i int) { c.used[i] = true }

// Claimed 查询下标是否已被占用 / Claimed reports whether index i is consumed.
func (c *ClaimSet) Claimed(i int) bool { return c.used[i] }

// Strategy 一种文件动作配对策略。策略按序运行，先到先得：
// 先前策略占用的代码块对后续策略不可见。
// Strategy pairs prose with code blocks. Strategies run in a fixed order;
// a block claimed by an earlier strategy is invisible to later ones.
type Strategy interface {
	Name() string
	Extract(doc *Document, claimed *ClaimSet) []Action
}

// Extractor 非结构化提取：当模型未按契约输出时从散文和代码块恢复动作
// Extractor recovers actions from free-form prose when the model ignored
// the structured contract.
type Extractor struct {
	log        logging.Logger
	strategies []Strategy
}

// NewExtractor 创建带默认策略链的提取器
// NewExtractor creates an extractor with the default strategy chain.
func NewExtractor(log logging.Logger) *Extractor {
	if log == nil {
		log = logging.Nop()
	}
	return &Extractor{
		log: log,
		strategies: []Strategy{
			headerProximity{},
			embeddedFilename{},
			mentionScan{},
		},
	}
}

// DetectLikely 判断响应是否疑似包含未结构化的文件或命令指令
// DetectLikely reports whether a response likely contains file or command
// instructions that were not emitted in the structured format.
func (e *Extractor) DetectLikely(response string) bool {
	for _, p := range likelyActionPatterns {
		if p.MatchString(response) {
			return true
		}
	}
	return false
}

// Extract 先运行策略链配对文件动作，再从剩余 shell 代码块提取命令动作。
// 返回值第二项表示是否提取到任何动作。
// Extract runs the strategy chain for file actions, then splits unclaimed
// shell-tagged blocks into command actions. The boolean reports whether
// anything was found.
func (e *Extractor) Extract(response string) ([]Action, bool) {
	doc := ParseDocument(response)
	claimed := newClaimSet()

	var out []Action
	for _, s := range e.strategies {
		got := s.Extract(doc, claimed)
		if len(got) > 0 {
			e.log.Debugf("%s paired %d file action(s)", s.Name(), len(got))
		}
		out = append(out, got...)
	}
	out = append(out, commandActions(doc, claimed)...)
	return out, len(out) > 0
}

// headerProximity 策略 1：形似路径的标题行与其后最近的未占用代码块配对
// headerProximity pairs a path-looking header line with the nearest
// following unclaimed block inside headerWindow lines.
type headerProximity struct{}

func (headerProximity) Name() string { return "header-proximity" }

func (headerProximity) Extract(doc *Document, claimed *ClaimSet) []Action {
	var out []Action
	for i, raw := range doc.Lines {
		if doc.insideBlock(i) {
			continue
		}
		candidate := headerPathCandidate(raw)
		if candidate == "" {
			continue
		}
		for j, block := range doc.Blocks {
			if claimed.Claimed(j) {
				continue
			}
			if block.StartLine <= i || block.StartLine-i > headerWindow {
				continue
			}
			out = append(out, Action{
				Kind:     KindFile,
				Path:     candidate,
				Content:  block.Content,
				Op:       OpCreate,
				Language: block.Language,
			})
			claimed.Claim(j)
			break
		}
	}
	return out
}

// headerPathCandidate 从一行提取可能的文件路径，无则返回空串
// headerPathCandidate returns the path-looking name on a line, or "".
func headerPathCandidate(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ""
	}
	for _, p := range headerLinePatterns {
		m := p.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		candidate := strings.TrimRight(strings.TrimSpace(m[1]), ":")
		if looksLikePath(candidate) {
			return candidate
		}
		return ""
	}
	return ""
}

func looksLikePath(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") || strings.HasSuffix(s, ".") {
		return false
	}
	if knownBareFilenames[s] {
		return true
	}
	if strings.Contains(s, "/") {
		return true
	}
	return strings.Contains(s, ".") && !strings.HasPrefix(s, "#")
}

// embeddedFilename 策略 2：带内嵌 filename 注释的代码块直接配对
// embeddedFilename pairs blocks carrying an embedded filename comment,
// independent of surrounding prose.
type embeddedFilename struct{}

func (embeddedFilename) Name() string { return "embedded-filename" }

func (embeddedFilename) Extract(doc *Document, claimed *ClaimSet) []Action {
	var out []Action
	for j, block := range doc.Blocks {
		if claimed.Claimed(j) || block.Filename == "" {
			continue
		}
		out = append(out, Action{
			Kind:     KindFile,
			Path:     block.Filename,
			Content:  block.Content,
			Op:       OpCreate,
			Language: block.Language,
		})
		claimed.Claim(j)
	}
	return out
}

// mentionScan 策略 3：兜底。扫描散文中的文件名提及，与其后首个未占用块配对
// mentionScan is the last resort: a filename mention in prose pairs with
// the first unclaimed block after the mention's line.
type mentionScan struct{}

func (mentionScan) Name() string { return "mention-scan" }

func (mentionScan) Extract(doc *Document, claimed *ClaimSet) []Action {
	var out []Action
	for _, m := range filenameMentionPattern.FindAllStringSubmatchIndex(doc.Text, -1) {
		line := strings.Count(doc.Text[:m[0]], "\n")
		if doc.insideBlock(line) {
			continue
		}
		mention := doc.Text[m[2]:m[3]]
		for j, block := range doc.Blocks {
			if claimed.Claimed(j) || block.StartLine <= line {
				continue
			}
			out = append(out, Action{
				Kind:     KindFile,
				Path:     mention,
				Content:  block.Content,
				Op:       OpCreate,
				Language: block.Language,
			})
			claimed.Claim(j)
			break
		}
	}
	return out
}

// commandActions 将未占用的 shell 代码块按行拆为命令动作。
// 空行与注释行丢弃，只保留含已知操作动词的行。
// commandActions splits unclaimed shell-tagged blocks line by line into
// command actions, dropping blanks and comments and keeping only lines
// containing a recognized operation verb.
func commandActions(doc *Document, claimed *ClaimSet) []Action {
	var out []Action
	for j, block := range doc.Blocks {
		if claimed.Claimed(j) || !isShellLanguage(block.Language) {
			continue
		}
		for _, raw := range strings.Split(block.Content, "\n") {
			line := strings.TrimSpace(raw)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !commandVerbPattern.MatchString(line) {
				continue
			}
			out = append(out, Action{Kind: KindCommand, Command: line})
		}
		claimed.Claim(j)
	}
	return out
}

func isShellLanguage(lang string) bool {
	switch lang {
	case "bash", "sh", "shell":
		return true
	}
	return false
}
