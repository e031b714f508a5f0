package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

// streamtail is a small client for the push protocol: it connects,
// authenticates, subscribes and prints delivered entries. Useful for manual
// testing and demos.
func main() {
	addr := flag.String("addr", "localhost:9220", "Stream server address")
	apiKey := flag.String("api-key", "", "API key for authentication")
	subsystems := flag.String("subsystems", "", "Comma-separated subsystem names to subscribe to")
	text := flag.String("text", "", "Optional free-text filter")
	flag.Parse()

	if *apiKey == "" {
		log.Fatal("an -api-key is required")
	}
	if *subsystems == "" {
		log.Fatal("at least one subsystem is required via -subsystems")
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()
	log.Printf("connected to %s", *addr)

	enc := json.NewEncoder(conn)
	send := func(msg map[string]any) {
		if err := enc.Encode(msg); err != nil {
			log.Fatalf("send failed: %v", err)
		}
	}

	send(map[string]any{"type": "authenticate", "apiKey": *apiKey})
	send(map[string]any{"type": "subscribe", "subsystems": strings.Split(*subsystems, ",")})
	if *text != "" {
		send(map[string]any{"type": "setFilters", "filters": map[string]any{"text": *text}})
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		var msg struct {
			Type            string          `json:"type"`
			Message         string          `json:"message"`
			Code            string          `json:"code"`
			Subsystem       string          `json:"subsystem"`
			Entry           json.RawMessage `json:"entry"`
			ServerTimestamp string          `json:"serverTimestamp"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Printf("malformed server message: %v", err)
			continue
		}

		switch msg.Type {
		case "ping":
			send(map[string]any{"type": "pong"})
		case "entry":
			fmt.Printf("[%s] %s %s\n", time.Now().Format(time.TimeOnly), msg.Subsystem, msg.Entry)
		case "error":
			log.Printf("server error (%s): %s", msg.Code, msg.Message)
		case "shutdown":
			log.Println("server shutting down")
			return
		default:
			log.Printf("%s: %s", msg.Type, msg.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("connection closed: %v", err)
	}
}
