package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"maestro/internal/domain"
)

const (
	defaultWatchInterval = time.Second
	watchWriteTimeout    = 5 * time.Second
	watchMaxDuration     = 15 * time.Minute
)

func (a *App) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.checkOrigin,
	}
}

// checkOrigin admits same-origin pages, non-browser clients and the
// configured CORS origins.
func (a *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return a.Origins.Allowed(origin)
}

// WatchJob streams the job view over a websocket every time it changes and
// closes the connection once the job is terminal.
func (a *App) WatchJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	id, ok := a.jobID(w, r)
	if !ok {
		return
	}
	// Resolve before upgrading so unknown ids get a plain 404.
	view, err := a.Jobs.GetJob(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	conn, err := a.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := zerolog.Ctx(r.Context()).With().Int64("job_id", id).Logger()

	// Reader loop only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := a.WatchInterval
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(watchMaxDuration)

	last := view
	if err := send(conn, view); err != nil {
		return
	}
	for !last.Status.Terminal() {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-deadline:
			closeWith(conn, websocket.CloseTryAgainLater, "watch timed out")
			return
		case <-ticker.C:
		}
		view, err := a.Jobs.GetJob(r.Context(), id)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Error().Err(err).Msg("http: watch read failed")
			}
			closeWith(conn, websocket.CloseInternalServerErr, "job unavailable")
			return
		}
		if view.Status == last.Status && view.UpdatedAt.Equal(last.UpdatedAt) {
			continue
		}
		if err := send(conn, view); err != nil {
			return
		}
		last = view
	}
	closeWith(conn, websocket.CloseNormalClosure, string(last.Status))
}

func send(conn *websocket.Conn, view domain.JobView) error {
	_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
	return conn.WriteJSON(view)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteTimeout))
}
