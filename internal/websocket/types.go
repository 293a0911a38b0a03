package websocket

import (
	"time"

	"github.com/coder/websocket"
)

// Message types sent to browsers.
const (
	MessageReload = "reload"
	MessageErrors = "errors"
)

// Message is a notification pushed to every connected browser.
type Message struct {
	Type       string    `json:"type"`
	CycleID    string    `json:"cycle_id,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Routes     []string  `json:"routes,omitempty"`
	Errors     int       `json:"errors,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// client is one browser connection.
type client struct {
	conn *websocket.Conn
	send chan []byte
}
