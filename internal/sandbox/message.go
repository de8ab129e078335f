package sandbox

import (
	"fmt"
	"net/url"

	"github.com/bytedance/sonic"
)

// Message types.
const (
	TypeReady          = "ready"
	TypeInit           = "init"
	TypeInitComplete   = "initComplete"
	TypeStartDevServer = "startDevServer"
	TypeSyncFile       = "syncFile"
	TypeConsole        = "console"
	TypeDevServerError = "devServerError"
)

// Message is one protocol frame. Only the fields relevant to Type are set.
type Message struct {
	Type string `json:"type"`
	ID   int64  `json:"id,omitempty"`

	// init: zstd compressed snapshot.
	Snapshot []byte `json:"snapshot,omitempty"`

	// startDevServer request and reply.
	Port int    `json:"port,omitempty"`
	Root string `json:"root,omitempty"`
	URL  string `json:"url,omitempty"`

	// syncFile. A nil Content deletes Path and goes out as "content":null.
	Path    string  `json:"path,omitempty"`
	Content *string `json:"content,omitempty"`

	// console.
	Method string   `json:"method,omitempty"`
	Args   []string `json:"args,omitempty"`

	// devServerError.
	Error string `json:"error,omitempty"`
}

// syncWire is the syncFile shape: content is always present, null on delete.
type syncWire struct {
	Type    string  `json:"type"`
	ID      int64   `json:"id,omitempty"`
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// wireMessage drops the Message methods so MarshalJSON can reuse the tags.
type wireMessage Message

// MarshalJSON encodes syncFile messages as {type, path, content} and every
// other type with its populated fields only.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Type == TypeSyncFile {
		return sonic.Marshal(syncWire{Type: m.Type, ID: m.ID, Path: m.Path, Content: m.Content})
	}
	return sonic.Marshal(wireMessage(m))
}

// Envelope is an inbound message tagged with the origin that sent it.
type Envelope struct {
	Origin  string
	Message Message
}

// SyncWrite builds a syncFile message writing content to path.
func SyncWrite(path string, content []byte) Message {
	c := string(content)
	return Message{Type: TypeSyncFile, Path: path, Content: &c}
}

// SyncDelete builds a syncFile message deleting path.
func SyncDelete(path string) Message {
	return Message{Type: TypeSyncFile, Path: path}
}

// Deleted reports whether a syncFile message removes its path.
func (m Message) Deleted() bool {
	return m.Content == nil
}

// Encode serializes a message for the wire.
func Encode(m Message) ([]byte, error) {
	data, err := sonic.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses a wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := sonic.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}

// OriginOf returns the web origin (scheme://host[:port]) of rawURL.
// Websocket schemes map to their HTTP equivalents.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}
