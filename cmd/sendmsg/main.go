package main

import (
	"context"
	"fmt"
	"os"
	"time"
	"whatube/internal/config"
	"whatube/internal/models"
	"whatube/internal/session"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Println("Usage: sendmsg <user-id> <message>")
		os.Exit(1)
	}
	peerID, text := os.Args[1], os.Args[2]

	cfg, err := config.Load(false)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess := session.New(ctx, cfg)
	if err := sess.Start(ctx); err != nil {
		fmt.Printf("Error starting session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	sess.StartChat(ctx, peerID)
	sess.Submit(text, nil)

	log := sess.Messages(peerID)
	if len(log) == 0 {
		fmt.Println("Nothing to send")
		os.Exit(1)
	}

	last := log[len(log)-1]
	fmt.Printf("%s: %s\n", last.Delivery, last.Body)
	if last.Delivery != models.DeliverySent {
		os.Exit(1)
	}
}
