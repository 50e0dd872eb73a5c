package actions

import (
	"strings"
	"testing"
)

func TestParse_WellFormedBlock(t *testing.T) {
	input := `Here is the plan.

<actions>
  <action type="command">
    <description>Create project directory</description>
    <command>mkdir -p demo</command>
  </action>
  <action type="file">
    <description>Entry point</description>
    <path>demo/main.py</path>
    <content><![CDATA[
print("hello")
]]></content>
  </action>
</actions>

Done.`

	p := NewParser(nil)
	actions, cleaned := p.Parse(input)

	if len(actions) != 2 {
		t.Fatalf("len(actions)=%d, want 2", len(actions))
	}
	if actions[0].Kind != KindCommand || actions[0].Command != "mkdir -p demo" {
		t.Fatalf("first action = %+v, want command 'mkdir -p demo'", actions[0])
	}
	if actions[0].Description != "Create project directory" {
		t.Fatalf("description = %q", actions[0].Description)
	}
	if actions[1].Kind != KindFile || actions[1].Path != "demo/main.py" {
		t.Fatalf("second action = %+v, want file demo/main.py", actions[1])
	}
	if actions[1].Content != `print("hello")` {
		t.Fatalf("content = %q", actions[1].Content)
	}
	if actions[1].Op != OpCreate {
		t.Fatalf("op = %q, want create", actions[1].Op)
	}

	if strings.Contains(cleaned, "<actions>") {
		t.Fatalf("cleaned text still contains markup: %q", cleaned)
	}
	if !strings.Contains(cleaned, Placeholder) {
		t.Fatalf("cleaned text missing placeholder: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Here is the plan.") || !strings.Contains(cleaned, "Done.") {
		t.Fatalf("surrounding prose lost: %q", cleaned)
	}
}

func TestParse_SingleCommandBlock(t *testing.T) {
	input := `<actions><action type="command"><description>make dir</description><command>mkdir -p foo</command></action></actions>`

	p := NewParser(nil)
	actions, cleaned := p.Parse(input)

	if len(actions) != 1 {
		t.Fatalf("len(actions)=%d, want 1", len(actions))
	}
	if actions[0].Command != "mkdir -p foo" || actions[0].Description != "make dir" {
		t.Fatalf("action = %+v", actions[0])
	}
	if cleaned != Placeholder {
		t.Fatalf("cleaned = %q, want placeholder only", cleaned)
	}
}

func TestParse_MalformedBlockDoesNotAbortSiblings(t *testing.T) {
	// 第一个块标签不匹配，第二个块完好 / first block has mismatched tags
	input := `<actions><action type="command"><description>broken</command></action></actions>

<actions><action type="command"><description>ok</description><command>npm install</command></action></actions>`

	p := NewParser(nil)
	actions, cleaned := p.Parse(input)

	if len(actions) != 1 {
		t.Fatalf("len(actions)=%d, want 1", len(actions))
	}
	if actions[0].Command != "npm install" {
		t.Fatalf("action = %+v", actions[0])
	}
	// 失败的块同样被占位符替换 / the failed block is replaced too
	if strings.Contains(cleaned, "<actions>") {
		t.Fatalf("cleaned text still contains markup: %q", cleaned)
	}
	if got := strings.Count(cleaned, Placeholder); got != 2 {
		t.Fatalf("placeholder count = %d, want 2: %q", got, cleaned)
	}
}

func TestParse_NoBlocksReturnsInputUnchanged(t *testing.T) {
	input := "  no structured actions here\n"

	p := NewParser(nil)
	actions, cleaned := p.Parse(input)

	if len(actions) != 0 {
		t.Fatalf("len(actions)=%d, want 0", len(actions))
	}
	if cleaned != input {
		t.Fatalf("cleaned = %q, want input unchanged", cleaned)
	}
}

func TestParse_MultipleBlocksKeepDocumentOrder(t *testing.T) {
	input := `<actions><action type="command"><command>mkdir -p a</command></action></actions>
middle
<actions><action type="command"><command>mkdir -p b</command></action></actions>`

	p := NewParser(nil)
	actions, _ := p.Parse(input)

	if len(actions) != 2 {
		t.Fatalf("len(actions)=%d, want 2", len(actions))
	}
	if actions[0].Command != "mkdir -p a" || actions[1].Command != "mkdir -p b" {
		t.Fatalf("order wrong: %+v", actions)
	}
}

func TestParse_OperationChild(t *testing.T) {
	input := `<actions>
  <action type="file">
    <path>old.txt</path>
    <operation>delete</operation>
    <content></content>
  </action>
  <action type="file">
    <path>new.txt</path>
    <content>hi</content>
  </action>
</actions>`

	p := NewParser(nil)
	actions, _ := p.Parse(input)

	if len(actions) != 2 {
		t.Fatalf("len(actions)=%d, want 2", len(actions))
	}
	if actions[0].Op != OpDelete {
		t.Fatalf("op = %q, want delete", actions[0].Op)
	}
	if actions[1].Op != OpCreate {
		t.Fatalf("op = %q, want create by default", actions[1].Op)
	}
}

func TestParse_IncompleteActionsSkipped(t *testing.T) {
	input := `<actions>
  <action type="command"><description>no command child</description></action>
  <action type="file"><description>no path</description><content>x</content></action>
  <action type="command"><command>node index.js</command></action>
</actions>`

	p := NewParser(nil)
	actions, _ := p.Parse(input)

	if len(actions) != 1 {
		t.Fatalf("len(actions)=%d, want 1: %+v", len(actions), actions)
	}
	if actions[0].Command != "node index.js" {
		t.Fatalf("action = %+v", actions[0])
	}
}

func TestParse_CDATAKeepsSpecialCharacters(t *testing.T) {
	input := `<actions><action type="file"><path>check.py</path><content><![CDATA[
if a < b && c:
    print("ok & done")
]]></content></action></actions>`

	p := NewParser(nil)
	actions, _ := p.Parse(input)

	if len(actions) != 1 {
		t.Fatalf("len(actions)=%d, want 1", len(actions))
	}
	want := "if a < b && c:\n    print(\"ok & done\")"
	if actions[0].Content != want {
		t.Fatalf("content = %q, want %q", actions[0].Content, want)
	}
}
