package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Bota93/spendesk/internal/cache"
	"github.com/Bota93/spendesk/internal/dashboard"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/remote"
	"github.com/Bota93/spendesk/internal/session"
)

// Workspace is the server-side state of one browser: its backend handle,
// the session store bound to it and the dashboard controller.
type Workspace struct {
	ID        string
	Client    *remote.Client
	Sessions  *session.Store
	Dashboard *dashboard.Controller

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	flash string
}

func newWorkspace(id, token string, backend remote.Backend, source events.Source, logger *log.Logger) *Workspace {
	wlog := logger.With(log.FieldWorkspaceID, id)

	opts := []remote.Option{remote.WithLogger(wlog)}
	if source != nil {
		opts = append(opts, remote.WithEventSource(source))
	}
	client := remote.NewClient(backend, opts...)
	client.Restore(token)

	ctx, cancel := context.WithCancel(context.Background())
	store := session.NewStore(client, wlog)
	store.Start(ctx)

	return &Workspace{
		ID:        id,
		Client:    client,
		Sessions:  store,
		Dashboard: dashboard.NewController(client, store, dashboard.WithLogger(wlog)),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// SetFlash stores a message for the next full page render.
func (ws *Workspace) SetFlash(msg string) {
	ws.mu.Lock()
	ws.flash = msg
	ws.mu.Unlock()
}

// TakeFlash returns the pending message and clears it.
func (ws *Workspace) TakeFlash() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	msg := ws.flash
	ws.flash = ""
	return msg
}

// Done is closed when the workspace is torn down.
func (ws *Workspace) Done() <-chan struct{} {
	return ws.done
}

// Close cancels the session subscription and detaches the client from the
// event source.
func (ws *Workspace) Close() {
	ws.closeOnce.Do(func() {
		ws.Sessions.Close()
		ws.Client.Close()
		ws.cancel()
		close(ws.done)
	})
}

// workspaceRegistry keeps the workspaces of recently active browsers.
// Evicted workspaces are closed.
type workspaceRegistry struct {
	mu      sync.Mutex
	cache   *cache.LRUCache[*Workspace]
	backend remote.Backend
	source  events.Source
	logger  *log.Logger
	created int64
}

func newWorkspaceRegistry(size int, idle time.Duration, backend remote.Backend, source events.Source, logger *log.Logger) *workspaceRegistry {
	reg := &workspaceRegistry{
		cache:   cache.NewLRUCache[*Workspace](size, idle),
		backend: backend,
		source:  source,
		logger:  logger,
	}
	reg.cache.OnEvict(func(id string, ws *Workspace) {
		ws.Close()
		reg.logger.Debug("Workspace closed", log.FieldWorkspaceID, id)
	})
	return reg
}

// open returns the workspace named by the request cookie. Unknown or missing
// ids get a fresh workspace under a new server-minted id, seeded with the
// token cookie; created reports that case so the caller can set the cookie.
func (reg *workspaceRegistry) open(r *http.Request) (ws *Workspace, created bool) {
	id := cookieValue(r, workspaceCookie)
	if id != "" {
		if ws, ok := reg.cache.Get(id); ok {
			return ws, false
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if id != "" {
		if ws, ok := reg.cache.Get(id); ok {
			return ws, false
		}
	}
	return reg.create(r.Context(), cookieValue(r, tokenCookie)), true
}

// rotate replaces ws with a new workspace under a new id, seeded with token.
// Called on sign-in so an id known before authentication never names an
// authenticated workspace.
func (reg *workspaceRegistry) rotate(ctx context.Context, ws *Workspace, token string) *Workspace {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.cache.Delete(ws.ID)
	return reg.create(ctx, token)
}

// create must be called with reg.mu held.
func (reg *workspaceRegistry) create(ctx context.Context, token string) *Workspace {
	id := uuid.NewString()
	ws := newWorkspace(id, token, reg.backend, reg.source, reg.logger)
	reg.cache.Set(id, ws)
	atomic.AddInt64(&reg.created, 1)
	reg.logger.DebugContext(ctx, "Workspace opened", log.FieldWorkspaceID, id)
	return ws
}

func (reg *workspaceRegistry) size() int {
	return reg.cache.Size()
}

func (reg *workspaceRegistry) total() int64 {
	return atomic.LoadInt64(&reg.created)
}

// closeAll tears every workspace down.
func (reg *workspaceRegistry) closeAll() {
	reg.cache.Purge()
}
