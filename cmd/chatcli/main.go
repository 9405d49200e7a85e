package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Chat/internal/chatclient"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

func main() {
	url := pflag.StringP("url", "u", "ws://localhost:3000/api/ws", "websocket endpoint")
	name := pflag.StringP("name", "n", "", "display name")
	room := pflag.StringP("room", "r", "", "room code to join; a new room is created when empty")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *url, *name, domain.RoomCode(*room)); err != nil {
		log.Error().Err(err).Msg("chat client failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, url, name string, code domain.RoomCode) error {
	c, err := chatclient.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer c.Close()

	if code == "" {
		if code, err = c.CreateRoom(ctx, name); err != nil {
			return err
		}
		fmt.Printf("created room %s, share the code to invite someone\n", code)
	} else {
		if err := c.Join(ctx, code, name); err != nil {
			return err
		}
		fmt.Printf("joined room %s\n", code)
	}
	fmt.Println("type a message, or /leave, /close, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.Events():
			if ev.Type == chatclient.EvDisconnected {
				fmt.Println("* connection lost, reconnecting")
				if err := c.Reconnect(ctx); err != nil {
					return err
				}
				continue
			}
			printEvent(ev)
		case line, ok := <-lines:
			if !ok {
				return c.Leave()
			}
			quit, err := command(ctx, c, strings.TrimSpace(line))
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func command(ctx context.Context, c *chatclient.Client, line string) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "/quit":
		return true, c.Leave()
	case "/leave":
		return false, c.Leave()
	case "/close":
		return false, c.CloseRoom()
	}
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return false, c.Send(sendCtx, line)
}

func printEvent(ev chatclient.Event) {
	switch ev.Type {
	case core.EvReceiveMessage:
		var m core.ReceiveMessage
		if ev.Decode(&m) == nil {
			fmt.Printf("[%s] %s: %s\n", shortTime(m.Timestamp), m.Username, m.Message)
		}
	case core.EvRoomHistory:
		var h core.RoomHistory
		if ev.Decode(&h) == nil {
			for _, m := range h.Messages {
				fmt.Printf("[%s] %s: %s\n", shortTime(m.Timestamp), m.Username, m.Message)
			}
		}
	case core.EvUserJoined:
		var j core.UserJoined
		if ev.Decode(&j) == nil {
			fmt.Printf("* %s joined\n", j.Username)
		}
	case core.EvUserLeft:
		var l core.UserLeft
		if ev.Decode(&l) == nil {
			fmt.Printf("* %s left\n", l.Username)
		}
	case core.EvForceDisconnect:
		fmt.Println("* the room was closed")
	case core.EvError:
		var e core.ErrorEvent
		if ev.Decode(&e) == nil {
			fmt.Printf("! %s\n", e.Error)
		}
	}
}

func shortTime(ts string) string {
	t, err := core.ParseTimestamp(ts)
	if err != nil {
		return ts
	}
	return t.Local().Format(time.Kitchen)
}
