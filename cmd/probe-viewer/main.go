package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"idea-auction/internal/config"
)

type join struct {
	Type    string `json:"type"`
	TopicID string `json:"topic_id"`
	Token   string `json:"token,omitempty"`
}

type react struct {
	Type      string `json:"type"`
	Reaction  string `json:"reaction"`
	AgentName string `json:"agent_name,omitempty"`
}

type speech struct {
	PersonaName string `json:"persona_name"`
	Phase       string `json:"phase"`
	Content     string `json:"content"`
	Emotion     string `json:"emotion"`
	Bid         int64  `json:"bid"`
	HighestBid  int64  `json:"highest_bid"`
	Generated   bool   `json:"generated"`
}

var reactions = []string{"fire", "clap", "doubt", "laugh"}

// probe-viewer attaches to a session and prints the event stream, sending
// the odd reaction when REACT=true. Handy for watching a server by eye.
func main() {
	cfg, err := config.LoadViewer()
	if err != nil {
		log.Fatal(err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(cfg.WSURL, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	msg, _ := json.Marshal(join{Type: "join_session", TopicID: cfg.TopicID, Token: cfg.Token})
	_ = conn.WriteMessage(websocket.TextMessage, msg)

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}
		switch base.Type {
		case "persona.speech", "bid.placed":
			var sp speech
			if err := json.Unmarshal(data, &sp); err != nil {
				continue
			}
			tag := ""
			if !sp.Generated {
				tag = " [fallback]"
			}
			if base.Type == "bid.placed" {
				fmt.Printf("[%s] %s bids %d (high %d)%s\n", sp.Phase, sp.PersonaName, sp.Bid, sp.HighestBid, tag)
			} else {
				fmt.Printf("[%s] %s (%s): %s%s\n", sp.Phase, sp.PersonaName, sp.Emotion, sp.Content, tag)
			}
			if cfg.React && rnd.Intn(4) == 0 {
				payload, _ := json.Marshal(react{
					Type:      "react_to_dialogue",
					Reaction:  reactions[rnd.Intn(len(reactions))],
					AgentName: sp.PersonaName,
				})
				_ = conn.WriteMessage(websocket.TextMessage, payload)
			}
		case "phase.changed", "time_extended", "session.ended", "ai.cost.update", "viewer_joined", "viewer_left":
			fmt.Printf("%s %s\n", base.Type, string(data))
			if base.Type == "session.ended" {
				return
			}
		case "error":
			fmt.Printf("error %s\n", string(data))
		}
	}
}
