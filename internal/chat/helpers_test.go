package chat

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
	"github.com/pelusa-v/pelusa-chat/internal/presence"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

var (
	alice = identity.NewIdentity("alice", identity.RoleCustomer)
	bob   = identity.NewIdentity("bob", identity.RoleProvider)
	carol = identity.NewIdentity("carol", identity.RoleCustomer)
)

// fakeDeliverer answers every push with a fixed result. Entries in delay
// hold the answer for the message with that text.
type fakeDeliverer struct {
	mu        sync.Mutex
	result    AckResult
	delay     map[string]time.Duration
	delivered []Outbound
	notified  []Outbound
}

func (f *fakeDeliverer) Deliver(ctx context.Context, out Outbound) AckResult {
	f.mu.Lock()
	f.delivered = append(f.delivered, out)
	result := f.result
	var wait time.Duration
	if msg, ok := out.Data.(*store.Message); ok {
		wait = f.delay[msg.Text]
	}
	f.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
	if result == AckTimedOut {
		<-ctx.Done()
	}
	return result
}

func (f *fakeDeliverer) Notify(out Outbound) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, out)
	return true
}

func (f *fakeDeliverer) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func (f *fakeDeliverer) notifiedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.notified))
	for _, o := range f.notified {
		types = append(types, o.Type)
	}
	return types
}

const testNode = "node-1"

type fakeConns struct {
	mu   sync.Mutex
	live map[string]Deliverer
}

func (f *fakeConns) Owns(handle string) bool {
	return strings.HasPrefix(handle, testNode+":")
}

func (f *fakeConns) Live(handle string) (Deliverer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.live[handle]
	return d, ok
}

func (f *fakeConns) set(handle string, d Deliverer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[handle] = d
}

type harness struct {
	store    *store.MemoryStore
	reg      *presence.MemoryRegistry
	conns    *fakeConns
	locator  *Locator
	dir      *Directory
	pipeline *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: store.NewMemoryStore(),
		reg:   presence.NewMemoryRegistry(),
		conns: &fakeConns{live: map[string]Deliverer{}},
	}
	log := zerolog.Nop()
	h.locator = NewLocator(h.reg, h.conns, log)
	h.dir = NewDirectory(h.store, h.store, log)
	h.pipeline = NewPipeline(h.dir, h.store, h.store, h.locator, identity.NewStoreAccounts(h.store),
		PipelineConfig{AckTimeout: 30 * time.Millisecond, PageSize: 10}, log)
	return h
}

// online registers userID as live with a connection that answers result.
func (h *harness) online(t *testing.T, userID string, result AckResult) *fakeDeliverer {
	t.Helper()
	d := &fakeDeliverer{result: result}
	handle := testNode + ":handle-" + userID
	h.conns.set(handle, d)
	require.NoError(t, h.reg.Register(context.Background(), userID, handle))
	return d
}

func (h *harness) pendingFor(t *testing.T, conversationID, userID string) []string {
	t.Helper()
	conv, err := h.store.GetConversation(context.Background(), conversationID)
	require.NoError(t, err)
	slot, ok := conv.SlotOf(userID)
	require.True(t, ok)
	return conv.Pending(slot)
}

// fakeConn is an in-memory websocket peer.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	f.out <- data
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) send(t *testing.T, in Inbound) {
	t.Helper()
	b, err := json.Marshal(in)
	require.NoError(t, err)
	f.in <- b
}

type frame struct {
	Type  string           `json:"type"`
	ReqID string           `json:"req_id"`
	AckID string           `json:"ack_id"`
	Data  json.RawMessage  `json:"data"`
	Error *apperr.AppError `json:"error"`
}

// next returns the next frame of the given type, skipping others.
func (f *fakeConn) next(t *testing.T, typ string) frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case b := <-f.out:
			var fr frame
			require.NoError(t, json.Unmarshal(b, &fr))
			if fr.Type == typ {
				return fr
			}
		case <-deadline:
			t.Fatalf("no %q frame received", typ)
		}
	}
}
