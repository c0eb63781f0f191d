// Tester is a small load client: it registers N accounts, connects them all
// to one room and measures end-to-end delivery throughput.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr string        `envconfig:"TESTER_SERVER_ADDR" default:"localhost:8080"`
	Room       string        `envconfig:"TESTER_ROOM" default:"load-room"`
	Clients    int           `envconfig:"TESTER_CLIENTS" default:"10"`
	Messages   int           `envconfig:"TESTER_MESSAGES" default:"100"`
	Interval   time.Duration `envconfig:"TESTER_INTERVAL" default:"10ms"`
	Password   string        `envconfig:"TESTER_PASSWORD" default:"Str0ng!Password#42"`
	Colours    bool          `envconfig:"TESTER_COLOURS" default:"true"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if !cfg.Colours {
		color.Disable()
	}

	color.Cyan.Printf("Starting %d clients against %s, room %q\n", cfg.Clients, cfg.ServerAddr, cfg.Room)

	var received atomic.Int64
	var sent atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := runClient(cfg, id, &sent, &received); err != nil {
				color.Red.Printf("Client %d failed: %v\n", id, err)
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	tps := float64(received.Load()) / elapsed.Seconds()
	color.Green.Printf("Sent %d, received %d fan-out events in %s (%.0f events/s)\n",
		sent.Load(), received.Load(), elapsed.Round(time.Millisecond), tps)
}

func runClient(cfg Config, id int, sent, received *atomic.Int64) error {
	email := fmt.Sprintf("tester-%d@example.com", id)
	token, err := obtainToken(cfg, email)
	if err != nil {
		return err
	}

	wsURL := url.URL{Scheme: "ws", Host: cfg.ServerAddr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	if err := writeFrame(conn, "join_chat", map[string]any{"room_id": cfg.Room}); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == "new_message" {
				received.Add(1)
			}
		}
	}()

	for i := 0; i < cfg.Messages; i++ {
		payload := map[string]any{
			"room_id": cfg.Room,
			"type":    "text",
			"content": map[string]any{"text": fmt.Sprintf("load message %d from client %d", i, id)},
		}
		if err := writeFrame(conn, "send_message", payload); err != nil {
			return err
		}
		sent.Add(1)
		time.Sleep(cfg.Interval)
	}

	// Give in-flight fan-out a moment to land before hanging up
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

// obtainToken registers the account, falling back to login when it already
// exists from a previous run.
func obtainToken(cfg Config, email string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": cfg.Password})
	base := "http://" + cfg.ServerAddr

	resp, err := http.Post(base+"/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		resp2, err := http.Post(base+"/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		defer resp2.Body.Close()
		return decodeToken(resp2)
	}
	return decodeToken(resp)
}

func decodeToken(resp *http.Response) (string, error) {
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("auth failed with status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func writeFrame(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(frame{Event: event, Data: raw})
}
