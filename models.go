package transmission

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHost           = "localhost"
	DefaultPort           = 9091
	DefaultPath           = "/transmission/rpc"
	DefaultRequestTimeout = 30 * time.Second

	// SessionIDHeader carries the session token in both directions.
	SessionIDHeader = "X-Transmission-Session-Id"

	scheme = "http"
)

// Client is a Transmission RPC client with transparent session-token renewal.
// mu only keeps field access memory-safe; it does not serialize calls.
type Client struct {
	mu        sync.RWMutex
	host      string
	port      int
	path      string
	username  string
	password  string
	hasAuth   bool
	token     string
	transport Transport
	logger    *zap.Logger
}

// Config contains the endpoint, credentials and collaborators of a Client.
// Zero values fall back to the package defaults.
type Config struct {
	Host     string
	Port     int
	Path     string
	Username string
	Password string

	// Transport overrides the default HTTP transport.
	Transport      Transport
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Request is the transport-level view of an RPC call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is what a Transport hands back to the client.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// rpcRequest is the JSON body sent to the daemon.
type rpcRequest struct {
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments"`
}

// Object is a decoded JSON object. Numbers are kept as json.Number so large
// integers such as byte counters survive decoding.
type Object map[string]any

// Result returns the "result" member of an RPC response ("success" when the
// daemon accepted the call).
func (o Object) Result() string {
	s, _ := o["result"].(string)
	return s
}

// Arguments returns the "arguments" member of an RPC response, or nil.
func (o Object) Arguments() Object {
	switch v := o["arguments"].(type) {
	case map[string]any:
		return Object(v)
	case Object:
		return v
	}
	return nil
}

// Decode shapes the object into v using its JSON tags.
func (o Object) Decode(v any) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// MagnetLink holds the fields of a parsed magnet URI.
type MagnetLink struct {
	Hash             string
	DisplayName      string
	Trackers         []string
	ExactLength      string
	ExactSource      string
	Keywords         string
	AcceptableSource string
}

// AddOptions configures AddMagnet.
type AddOptions struct {
	MagnetURI   string
	DownloadDir string
	Paused      bool
	Labels      []string
}

// AddedTorrent identifies the torrent created (or found) by torrent-add.
type AddedTorrent struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HashString string `json:"hashString"`
	Duplicate  bool   `json:"-"`
}

// SessionStats is the subset of session-stats used by callers.
type SessionStats struct {
	ActiveTorrentCount int   `json:"activeTorrentCount"`
	PausedTorrentCount int   `json:"pausedTorrentCount"`
	TorrentCount       int   `json:"torrentCount"`
	DownloadSpeed      int64 `json:"downloadSpeed"`
	UploadSpeed        int64 `json:"uploadSpeed"`
}
