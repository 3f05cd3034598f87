package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"spacechat/backend/internal/api/handler"
	"spacechat/backend/internal/backend"
	"spacechat/backend/internal/chathub"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/models"
	"spacechat/backend/internal/storage"
	"spacechat/backend/internal/telegram"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

  outbox list [status] [limit]      list failed sends
  outbox replay <id>                resend a failed message
  outbox discard <id>               drop a failed message
  token <profile_id> <space_id> [hours]
                                    mint a development bearer token
  link-telegram <profile_id>        issue a code for /start in the bot
  kv get <key>                      print a stored value
  kv keys <pattern>                 list stored keys`

// Sender is the backend call used to replay the outbox.
type Sender interface {
	SendMessage(ctx context.Context, msg models.NewMessage) (*models.ChatMessage, error)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	args := os.Args[2:]
	switch os.Args[1] {
	case "outbox":
		if len(args) < 1 {
			fmt.Println(usage)
			os.Exit(1)
		}
		s := openStorage(cfg)
		switch args[0] {
		case "list":
			status, limit := "", 50
			if len(args) > 1 {
				status = args[1]
			}
			if len(args) > 2 {
				limit = mustInt(args[2], "limit")
			}
			entries, err := s.ListOutbox(ctx, status, limit)
			if err != nil {
				log.Fatalf("Error listing outbox: %v", err)
			}
			printOutbox(entries)
		case "replay":
			id := outboxID(args)
			gql := backend.New(backend.Options{URL: cfg.GraphQLURL, Token: cfg.BackendToken, Timeout: cfg.BackendTimeout})
			msg, err := replayOutbox(ctx, s, gql, id)
			if err != nil {
				log.Fatalf("Error replaying outbox entry %d: %v", id, err)
			}
			fmt.Printf("Outbox entry %d resent as message %s.\n", id, msg.ID)
		case "discard":
			id := outboxID(args)
			if err := s.MarkOutboxResolved(ctx, id, models.OutboxStatusDiscarded); err != nil {
				log.Fatalf("Error discarding outbox entry %d: %v", id, err)
			}
			fmt.Printf("Outbox entry %d has been discarded.\n", id)
		default:
			fmt.Println("Unknown outbox command")
			os.Exit(1)
		}

	case "token":
		if len(args) < 2 {
			fmt.Println("Usage: admin token <profile_id> <space_id> [hours]")
			os.Exit(1)
		}
		if cfg.JWTSecret == "" {
			log.Fatal("JWT_SECRET is not set")
		}
		hours := 72
		if len(args) > 2 {
			hours = mustInt(args[2], "hours")
		}
		token, err := handler.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer).
			Issue(mustInt64(args[0], "profile_id"), mustInt64(args[1], "space_id"), time.Duration(hours)*time.Hour)
		if err != nil {
			log.Fatalf("Error minting token: %v", err)
		}
		fmt.Println(token)

	case "link-telegram":
		if len(args) != 1 {
			fmt.Println("Usage: admin link-telegram <profile_id>")
			os.Exit(1)
		}
		code, err := telegram.CreateLinkCode(ctx, openStore(cfg), mustInt64(args[0], "profile_id"))
		if err != nil {
			log.Fatalf("Error creating link code: %v", err)
		}
		fmt.Printf("Send this to the bot within %s:\n/start %s\n", telegram.LinkCodeTTL, code)

	case "kv":
		if len(args) != 2 {
			fmt.Println("Usage: admin kv get <key> | admin kv keys <pattern>")
			os.Exit(1)
		}
		store := openStore(cfg)
		switch args[0] {
		case "get":
			val, err := store.Get(ctx, args[1])
			if err != nil {
				log.Fatalf("Error reading %s: %v", args[1], err)
			}
			fmt.Println(val)
		case "keys":
			keys, err := store.Keys(ctx, args[1])
			if err != nil {
				log.Fatalf("Error listing keys: %v", err)
			}
			for _, k := range keys {
				fmt.Println(k)
			}
		default:
			fmt.Println("Unknown kv command")
			os.Exit(1)
		}

	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

// replayOutbox resends a failed message and marks the entry resent. The
// confirmed message is announced to connected members.
func replayOutbox(ctx context.Context, s storage.Storage, sender Sender, id uint) (*models.ChatMessage, error) {
	entry, err := s.GetOutboxEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.OutboxStatusFailed {
		return nil, fmt.Errorf("entry is already %s", entry.Status)
	}

	msg, err := sender.SendMessage(ctx, models.NewMessage{
		ChatRoomID:      entry.ChatRoomID,
		SenderProfileID: entry.SenderProfileID,
		Text:            entry.Text,
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("backend returned no message")
	}
	if err := s.MarkOutboxResolved(ctx, id, models.OutboxStatusResent); err != nil {
		return nil, err
	}
	if activity, ok := chathub.ActivityFromMessage(*msg); ok {
		if err := s.PublishRoomActivity(ctx, activity); err != nil {
			log.Printf("WARN: resent message was not announced: %v", err)
		}
	}
	return msg, nil
}

func printOutbox(entries []models.OutboxEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tROOM\tPROFILE\tATTEMPTS\tCREATED\tTEXT\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\t%q\t%s\n",
			e.ID, e.Status, e.ChatRoomID, e.SenderProfileID, e.Attempts,
			e.CreatedAt.Format(time.RFC3339), e.Text, e.LastError)
	}
	w.Flush()
}

func openStorage(cfg *config.Config) *storage.Service {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return storage.NewStorageService(db, newRedis(cfg))
}

func openStore(cfg *config.Config) kvstore.Store {
	return kvstore.NewRedisStore(newRedis(cfg), "spacechat:")
}

func newRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func outboxID(args []string) uint {
	if len(args) != 2 {
		fmt.Println("Usage: admin outbox replay|discard <id>")
		os.Exit(1)
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Println("Invalid outbox ID. Please provide an integer.")
		os.Exit(1)
	}
	return uint(id)
}

func mustInt(raw, name string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Printf("Invalid %s. Please provide an integer.\n", name)
		os.Exit(1)
	}
	return n
}

func mustInt64(raw, name string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Printf("Invalid %s. Please provide an integer.\n", name)
		os.Exit(1)
	}
	return n
}
