package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/lifecycle"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/session"
	"main/internal/transport/gorillaws"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	url := flag.String("url", "", "WebSocket URL (overrides config)")
	userID := flag.Int64("user", 0, "Local user id (overrides config)")
	room := flag.Int64("room", 1, "Chat room id for outgoing messages")
	profile := flag.Bool("profile", false, "Enable pyroscope profiling")
	profileAddr := flag.String("profile-addr", "http://localhost:4040", "Pyroscope server address")
	flag.Parse()

	loaded := ops.Loaded{}
	if *configPath != "" {
		var err error
		loaded, err = ops.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if *url != "" {
		loaded.URL = *url
	}
	if *userID != 0 {
		loaded.UserID = *userID
	}
	if loaded.URL == "" || loaded.UserID == 0 {
		log.Fatal("a server url and user id are required (flags or config)")
	}

	if *profile {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "chat/session",
			ServerAddress:   *profileAddr,
			Tags:            map[string]string{"env": "local"},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewMetrics()
	sess, err := session.New(session.Config{
		URL:           loaded.URL,
		UserID:        loaded.UserID,
		Dialer:        &gorillaws.Dialer{},
		Backoff:       loaded.Backoff,
		Metrics:       metrics,
		MaxRetries:    loaded.MaxRetries,
		SweepInterval: loaded.SweepInterval,
		ExpireAfter:   loaded.ExpireAfter,
		SettleDelay:   loaded.SettleDelay,
		ResumeDelay:   loaded.ResumeDelay,
		PingInterval:  loaded.PingInterval,
	})
	if err != nil {
		log.Fatalf("build session: %v", err)
	}
	defer sess.Shutdown()

	unsubscribe := sess.SubscribeToSignaling(func(env schema.Envelope) {
		if env.Type == schema.EventNewMessage {
			var ev schema.NewMessageEvent
			if env.Decode(&ev) == nil {
				fmt.Printf("[%d] %s: %s\n", ev.Message.ChatRoomID, ev.Message.SenderName(), ev.Message.Content)
			}
		}
	})
	defer unsubscribe()

	sess.Connect()
	logs.Infof("chat: connected as user %d, type a message or /bg /fg /state /quit", loaded.UserID)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := handleLine(sess, loaded.UserID, *room, strings.TrimSpace(line)); done {
				return
			}
		}
	}
}

func handleLine(sess *session.Session, userID, room int64, line string) bool {
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/bg":
		sess.HandleAppState(lifecycle.StateBackground)
		return false
	case line == "/fg":
		sess.HandleAppState(lifecycle.StateActive)
		return false
	case line == "/state":
		st := sess.ConnectionState()
		fmt.Printf("connected=%v reconnecting=%v attempts=%d pending=%d\n",
			st.IsConnected, st.IsReconnecting, st.ReconnectAttempts, sess.PendingMessageCount())
		return false
	}

	clientRequestID := fmt.Sprintf("%d-%d", userID, time.Now().UnixNano())
	msg := schema.Message{
		ChatRoomID:      room,
		SenderID:        userID,
		Content:         line,
		ClientRequestID: clientRequestID,
		CreatedAt:       time.Now(),
	}
	sess.AddOptimistic(room, msg)
	result, err := sess.SendMessage(map[string]any{
		"type":            "message",
		"chatRoomId":      room,
		"content":         line,
		"clientRequestId": clientRequestID,
	})
	if err != nil {
		logs.Errorf("chat: send failed: %v", err)
		return false
	}
	if result.Queued {
		fmt.Printf("(queued %s)\n", result.PendingID)
	}
	return false
}
