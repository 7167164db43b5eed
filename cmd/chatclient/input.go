package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"event-chat/internal/chat"
	"event-chat/internal/models"
)

// runInput reads commands and messages line by line until EOF or ctx ends.
func runInput(ctx context.Context, in io.Reader, session *chat.Session, out *printer) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := scanLines(ctx, in)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, session, out, line); quit {
				return
			}
		}
	}
}

// scanLines feeds lines from in until EOF or ctx is done. A read already
// blocked on in only returns once in yields.
func scanLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func handleLine(ctx context.Context, session *chat.Session, out *printer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "/quit":
		return true
	case "/join":
		err = session.Join(ctx)
	case "/leave":
		err = session.Leave(ctx)
	case "/delete":
		err = session.DeleteMessage(ctx, models.MessageID(arg))
	case "/retry":
		err = session.RetryMessage(ctx, arg)
	case "/typing":
		err = session.NotifyTyping()
	case "/who":
		var v chat.View
		if v, err = session.View(); err == nil {
			out.Who(v)
		}
	default:
		var res chat.SendResult
		res, err = session.SendMessage(line)
		if err == nil && res == chat.Queued {
			out.Notice("not connected, message queued and will be sent on reconnect")
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, chat.ErrReadOnly):
		out.Notice("this event has ended, chat is read-only")
	case errors.Is(err, chat.ErrNotEligible):
		out.Notice("join the event to chat (/join)")
	default:
		out.Notice(fmt.Sprintf("error: %v", err))
	}
	return false
}
