package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"pilot/internal/i18n"
	"pilot/internal/orchestrator"
	"pilot/internal/queue"
	"pilot/internal/security"
)

// confirmPrompt 返回 REPL 的单项确认回调。中断或 EOF 视为拒绝而非错误，
// 默认选择也是拒绝。
// confirmPrompt returns the REPL per-item confirmation callback. Interrupt
// and EOF decline rather than error, and declining is the default choice.
func confirmPrompt(input lineInput, out io.Writer) orchestrator.ConfirmFunc {
	return func(ctx context.Context, item *queue.Item, risk security.Risk) (orchestrator.ConfirmDecision, error) {
		fmt.Fprintln(out)
		fmt.Fprintln(out, i18n.T("confirm.title"))
		fmt.Fprintln(out, "  ► "+item.Display)
		switch {
		case item.Action.Command != "":
			fmt.Fprintln(out, "    $ "+item.Action.Command)
		case item.Action.Path != "":
			fmt.Fprintln(out, "    -> "+item.Action.Path)
		}
		if risk.Dangerous {
			fmt.Fprintln(out, "  "+i18n.T("confirm.danger")+": "+risk.Reason)
		}
		fmt.Fprintln(out, "  1) "+i18n.T("confirm.yes"))
		fmt.Fprintln(out, "  2) "+i18n.T("confirm.always"))
		fmt.Fprintln(out, "  3) "+i18n.T("confirm.no"))

		for {
			if err := ctx.Err(); err != nil {
				return orchestrator.ConfirmNo, err
			}
			line, err := input.ReadLine("Choice [1/2/3] (default 3): ")
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					return orchestrator.ConfirmNo, nil
				}
				return orchestrator.ConfirmNo, err
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "1", "y", "yes":
				return orchestrator.ConfirmYes, nil
			case "2", "a", "always":
				return orchestrator.ConfirmAlways, nil
			case "", "3", "n", "no":
				return orchestrator.ConfirmNo, nil
			default:
				fmt.Fprintln(out, "Please answer 1, 2 or 3.")
			}
		}
	}
}
