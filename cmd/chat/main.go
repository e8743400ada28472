// Command chat is a terminal client for poking at a running relayd: it opens
// one conversation and sends whatever you type.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/campusconnect/messaging/internal/config"
	"github.com/campusconnect/messaging/internal/conversation"
	"github.com/campusconnect/messaging/internal/history"
	"github.com/campusconnect/messaging/internal/logger"
	"github.com/campusconnect/messaging/internal/presence"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	user := flag.String("user", "", "local user id")
	peer := flag.String("peer", "", "remote user id")
	token := flag.String("token", "", "session token (when relayd has auth enabled)")
	flag.Parse()

	if *user == "" || *peer == "" {
		log.Fatal("both -user and -peer are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	zlog, err := logger.New(logger.Config{Development: true})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	wsURL := cfg.Client.RelayURL
	q := url.Values{}
	if *token != "" {
		q.Set("token", *token)
	} else {
		q.Set("user_id", *user)
	}
	wsURL += "?" + q.Encode()

	channel := presence.NewWSChannel(wsURL, zlog)
	ctx := context.Background()
	if err := channel.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer func() { _ = channel.Close() }()

	hist := history.NewClient(history.ClientConfig{
		BaseURL:   cfg.Client.HistoryURL,
		AuthToken: *token,
	})

	// render runs from both the main goroutine (after Send) and the channel's
	// dispatch goroutine (OnChange), so printed needs the lock.
	var ctrl *conversation.Controller
	var renderMu sync.Mutex
	printed := 0
	render := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		msgs := ctrl.Messages()
		if printed > len(msgs) {
			printed = 0
		}
		for _, m := range msgs[printed:] {
			tag := ""
			if m.SenderID == *user {
				if s, ok := ctrl.StatusOf(m.ID); ok {
					tag = " [" + string(s) + "]"
				}
			}
			fmt.Printf("%s %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Body, tag)
			printed++
		}
	}

	ctrl, err = conversation.NewController(conversation.Options{
		LocalUserID:    *user,
		RemoteUserID:   *peer,
		Channel:        channel,
		History:        hist,
		TypingDebounce: cfg.TypingDebounce,
		TypingTimeout:  cfg.TypingTimeout,
		OnChange:       render,
		Logger:         zlog,
	})
	if err != nil {
		log.Fatalf("controller: %v", err)
	}
	if err := ctrl.Activate(ctx); err != nil {
		zlog.Warnw("history load failed, starting empty", "err", err)
	}
	defer ctrl.Close()

	fmt.Printf("chatting with %s in room %s (ctrl-d to quit)\n", *peer, ctrl.RoomID())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ctrl.NotifyTyping()
		if _, err := ctrl.Send(ctx, line, nil); err != nil {
			fmt.Printf("send failed: %v\n", err)
		}
	}
}
