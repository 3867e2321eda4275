/*
Copyright (C) 2026  Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package frontend

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/launix-de/replicated-register/register"
	"github.com/launix-de/replicated-register/replication"
)

const resultPrompt = "\033[31m=\033[0m "

func promptFor(r *register.Replica[string]) string {
	return fmt.Sprintf("\033[32m%s>\033[0m ", r.Actor())
}

func repl(r *register.Replica[string], hub *replication.Hub[string]) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            promptFor(r),
		HistoryFile:       ".registerctl-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := dispatch(r, hub, line); err != nil {
			fmt.Println("error:", err)
		}
		l.SetPrompt(promptFor(r))
	}
	return nil
}

func dispatch(r *register.Replica[string], hub *replication.Hub[string], line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "set":
		if len(fields) < 2 {
			return fmt.Errorf("usage: set <value>")
		}
		op := r.Set(strings.Join(fields[1:], " "))
		printResult(op.ID.String())
	case "get":
		printResult(fmt.Sprint(r.Get()))
	case "delete":
		op := r.Delete()
		if op == nil {
			return fmt.Errorf("nothing to delete")
		}
		printResult(op.ID.String())
	case "undo":
		op := r.Undo()
		if op == nil {
			return fmt.Errorf("undo stack is empty")
		}
		printResult(op.ID.String())
	case "redo":
		op := r.Redo()
		if op == nil {
			return fmt.Errorf("redo stack is empty")
		}
		printResult(op.ID.String())
	case "undostack":
		printStack(r.UndoStack())
	case "redostack":
		printStack(r.RedoStack())
	case "heads":
		for _, t := range r.TerminalHeads() {
			fmt.Printf("%s depth=%d trace=%v\n", t.Op.ID, t.Depth, t.Trace)
		}
	case "connect":
		if len(fields) < 2 {
			return fmt.Errorf("usage: connect <ws-url>")
		}
		peer, err := hub.Dial(context.Background(), fields[1])
		if err != nil {
			return err
		}
		printResult("connected " + peer.ID())
	case "peers":
		for _, p := range hub.Peers() {
			fmt.Println(p)
		}
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func printResult(s string) {
	fmt.Print(resultPrompt)
	fmt.Println(s)
}

func printStack(ops []*register.Operation[string]) {
	for i, op := range ops {
		fmt.Printf("%d: %s (%s)\n", i, op.ID, op.Kind)
	}
}
