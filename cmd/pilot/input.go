package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// lineInput 抽象一行输入，便于在 readline 不可用时退回基础实现。
// lineInput abstracts one line of input so we can fall back to a basic
// reader when readline is unavailable.
type lineInput interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

type basicLineInput struct {
	reader *bufio.Reader
}

func newBasicLineInput() *basicLineInput {
	return &basicLineInput{reader: bufio.NewReader(os.Stdin)}
}

func (b *basicLineInput) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := b.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (b *basicLineInput) Close() error { return nil }

type readlineInput struct {
	rl *readline.Instance
}

func newReadlineInput(historyPath string) (*readlineInput, error) {
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
			historyPath = ""
		}
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, err
	}
	return &readlineInput{rl: rl}, nil
}

func (r *readlineInput) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	return r.rl.Readline()
}

func (r *readlineInput) Close() error { return r.rl.Close() }

// newLineInput 优先使用 readline（历史、行编辑）。非终端输入（管道、
// 重定向）或初始化失败时退回 bufio。
// newLineInput prefers readline (history, line editing). Non-terminal
// stdin (pipes, redirects) or an init failure falls back to bufio.
func newLineInput(historyPath string) lineInput {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return newBasicLineInput()
	}
	rl, err := newReadlineInput(historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", err)
		return newBasicLineInput()
	}
	return rl
}
