// Package integration drives a fully assembled bridge against an in-process
// websocket peer.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"bimbridge/internal/adapter/store"
)

// Config holds integration test configuration from environment
type Config struct {
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		TestTimeout: 30 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Peer stands in for the remote viewer. Every accepted connection is handed
// to the test and held open until the test ends.
type Peer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	hold  chan struct{}
}

// NewPeer starts a peer that is shut down with the test.
func NewPeer(t *testing.T) *Peer {
	t.Helper()
	p := &Peer{conns: make(chan *websocket.Conn, 4), hold: make(chan struct{})}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		p.conns <- c
		<-p.hold
		c.CloseNow()
	}))
	t.Cleanup(func() {
		close(p.hold)
		p.srv.Close()
	})
	return p
}

// URI is the websocket endpoint of the peer.
func (p *Peer) URI() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/ws/blender-connector/"
}

// Accept waits for the bridge to connect.
func (p *Peer) Accept(ctx context.Context) (*websocket.Conn, error) {
	select {
	case c := <-p.conns:
		return c, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no connection: %w", ctx.Err())
	}
}

// Frame is an outbound envelope as seen by the peer.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReadFrame reads and decodes one envelope.
func ReadFrame(ctx context.Context, c *websocket.Conn) (Frame, error) {
	_, data, err := c.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode %q: %w", data, err)
	}
	return f, nil
}

// WriteText sends one raw text frame.
func WriteText(ctx context.Context, c *websocket.Conn, frame string) error {
	return c.Write(ctx, websocket.MessageText, []byte(frame))
}

// GeneratedModel builds a model of n elements: one storey and n-1 walls
// contained in it. Wall i has local id 1000+i and unique id "wall-<i>".
func GeneratedModel(n int) (*store.Model, error) {
	f := &store.Fixture{Elements: []store.ElementSpec{{
		LocalID:  1,
		UniqueID: "storey-1",
		Category: "IfcBuildingStorey",
		Name:     "Level 1",
		Spatial:  true,
	}}}
	for i := range n - 1 {
		f.Elements = append(f.Elements, store.ElementSpec{
			LocalID:     int64(1000 + i),
			UniqueID:    fmt.Sprintf("wall-%d", i),
			Category:    "IfcWall",
			Name:        fmt.Sprintf("Wall %d", i),
			ContainedIn: []int64{1},
			PropertySets: []store.PropertySetSpec{{
				Name:       "Pset_WallCommon",
				Properties: []store.PropertySpec{{Name: "IsExternal", Value: i%2 == 0}},
			}},
		})
	}
	return store.NewModel(f)
}
