// Command ws_client submits an async solve and prints its lifecycle events
// received over the websocket endpoint.
//
//	go run scripts/ws_client.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const solveBody = `{
  "locations": [{"x":50,"y":50},{"x":12,"y":80},{"x":30,"y":25},{"x":75,"y":90},{"x":88,"y":15},{"x":64,"y":62}],
  "deliveries": [0,4,6,3,7,2],
  "pickups": [0,2,0,5,1,2],
  "vehicles": 2,
  "capacity": 15,
  "options": {"strategy": "best", "timeBudgetMs": 500}
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solves?async=true", bytes.NewReader([]byte(solveBody)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "planner")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("submit: unexpected status %s", resp.Status)
	}
	var run struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", run.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solves/" + run.ID + "/events"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "viewer")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		if m.Type == "complete" {
			return
		}
	}
}
