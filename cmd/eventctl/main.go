// eventctl dispatches a test event through a running relay, either over the
// loopback trigger listener or through the queue intake.
//
//	eventctl -event message.new -conversation 42 -data '{"id":7}'
//	eventctl -queue -event status.read -user 123e4567-e89b-12d3-a456-426614174000
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	queueAdapter "go-relay/internal/infrastructure/queue/adapter"
	qport "go-relay/internal/infrastructure/queue/port"
	relay "go-relay/internal/pkg/relay/application/domain"
	"go-relay/internal/pkg/relay/application/task"
)

func main() {
	var (
		event        = flag.String("event", "", "event name (required)")
		data         = flag.String("data", "", "event payload as JSON object")
		user         = flag.String("user", "", "target principal id (36 chars)")
		conversation = flag.Int64("conversation", 0, "target conversation id")
		addr         = flag.String("addr", "http://127.0.0.1:8075", "trigger listener base URL")
		viaQueue     = flag.Bool("queue", false, "enqueue via redis instead of the HTTP listener")
	)
	flag.Parse()

	if *event == "" {
		flag.Usage()
		os.Exit(2)
	}

	trig := relay.Trigger{Event: *event, TargetUserID: *user, Data: map[string]any{}}
	if *conversation != 0 {
		trig.ConversationID = conversation
	}
	if *data != "" {
		if err := json.Unmarshal([]byte(*data), &trig.Data); err != nil {
			log.Fatalf("invalid -data: %v", err)
		}
	}

	if *viaQueue {
		if err := enqueue(trig); err != nil {
			log.Fatalf("enqueue failed: %v", err)
		}
		fmt.Println("enqueued")
		return
	}

	if err := post(*addr, trig); err != nil {
		log.Fatalf("trigger failed: %v", err)
	}
	fmt.Println("dispatched")
}

func post(addr string, trig relay.Trigger) error {
	body, err := json.Marshal(map[string]any{
		"event":           trig.Event,
		"data":            trig.Data,
		"target_user_id":  trig.TargetUserID,
		"conversation_id": trig.ConversationID,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(addr+"/event", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		reply, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, reply)
	}
	return nil
}

func enqueue(trig relay.Trigger) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is not set")
	}

	client, err := queueAdapter.NewAsynqClient(redisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	t, err := task.NewDispatchEventTask(trig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := client.Enqueue(ctx, t, qport.EnqueueOption{Queue: "relay"})
	if err != nil {
		return err
	}
	log.Printf("task id: %s", id)
	return nil
}
