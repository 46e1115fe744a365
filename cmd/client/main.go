package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"taskquest/internal/config"
	"taskquest/internal/realtime"
	"taskquest/internal/session"
)

// Terminal client for poking at a running server: authenticates, joins
// a team room and prints everything the room broadcasts.
func main() {
	_ = godotenv.Load()

	url := flag.String("url", "ws://localhost:8080/ws", "server websocket endpoint")
	teamID := flag.String("team", "42", "team whose room to join")
	userID := flag.String("user", "u-dev", "user id to authenticate as")
	name := flag.String("name", "dev", "display name")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	s := session.New(session.Config{
		URL:               *url,
		Token:             viper.GetString("TASKQUEST_TOKEN"),
		UserID:            *userID,
		DisplayName:       *name,
		BackoffBase:       cfg.Session.BackoffBase,
		BackoffCap:        cfg.Session.BackoffCap,
		MaxAttempts:       cfg.Session.MaxAttempts,
		KeepAliveInterval: cfg.Session.KeepAliveInterval,
		HandshakeTimeout:  cfg.Session.HandshakeTimeout,
	})

	s.OnStateChange(func(st session.State, err error) {
		if err != nil {
			slog.Error("Connectivity lost", "state", st, "error", err)
			return
		}
		slog.Info("Connectivity changed", "state", st)
	})

	printEvent := func(msg *realtime.Message) {
		fmt.Printf("[%s] %s: %v\n", msg.Type, msg.UserID, msg.Data)
	}
	d := s.Dispatcher()
	d.On(realtime.MessageTypeTeamMessage, printEvent)
	d.On(realtime.MessageTypeTaskUpdated, printEvent)
	d.On(realtime.MessageTypeTaskCompleted, printEvent)
	d.On(realtime.MessageTypeTeamInvitation, printEvent)
	d.On(realtime.MessageTypeStatusUpdated, printEvent)
	d.On(realtime.MessageTypeUserConnected, printEvent)
	d.On(realtime.MessageTypeUserDisconnected, printEvent)
	d.On(realtime.MessageTypeError, func(msg *realtime.Message) {
		var e realtime.ErrorData
		if err := msg.Bind(&e); err != nil {
			return
		}
		slog.Warn("Server rejected a frame", "code", e.Code, "detail", e.Message)
	})

	if err := s.JoinRoom(realtime.RoomForTeam(*teamID)); err != nil {
		log.Fatal("Join failed:", err)
	}
	if err := s.Start(); err != nil {
		log.Fatal("Start failed:", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	s.Stop()
}
