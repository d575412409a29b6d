// Package api wires the replay server's HTTP surface and duplex websocket
// channel onto a single session: the REST routes for chart data, debug
// controls, and timeframe/date transitions, plus the /ws upgrade that
// hands the session a live broadcaster connection.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/thrasher-corp/candlereplay/internal/replaylog"
	"github.com/thrasher-corp/candlereplay/internal/session"
)

// Server exposes one session over HTTP and a duplex websocket channel.
type Server struct {
	session  *session.Session
	upgrader websocket.Upgrader
	webDir   string
}

// New builds a Server fronting sess. webDir, if non-empty, is served as
// static content at "/".
func New(sess *session.Session, webDir string) *Server {
	return &Server{
		session: sess,
		webDir:  webDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gorilla/mux router for every route the replay server
// exposes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	if s.webDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.webDir))).Methods(http.MethodGet).MatcherFunc(func(req *http.Request, m *mux.RouteMatch) bool {
			return req.URL.Path == "/" || req.URL.Path == "/index.html"
		})
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chart/data", s.handleChartData).Methods(http.MethodGet)
	api.HandleFunc("/chart/change_timeframe", s.handleChangeTimeframe).Methods(http.MethodPost)
	api.HandleFunc("/chart/go_to_date", s.handleGoToDate).Methods(http.MethodPost)
	api.HandleFunc("/debug/skip", s.handleDebugSkip).Methods(http.MethodPost)
	api.HandleFunc("/debug/set_timeframe/{tf}", s.handleDebugSetTimeframe).Methods(http.MethodPost)
	api.HandleFunc("/debug/set_speed", s.handleDebugSetSpeed).Methods(http.MethodPost)
	api.HandleFunc("/debug/toggle_play", s.handleDebugTogglePlay).Methods(http.MethodPost)
	api.HandleFunc("/debug/state", s.handleDebugState).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWebsocket)
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		replaylog.Debugf(replaylog.APISys, "%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
