package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/r3labs/sse/v2"

	"intellilight/bulb"
	"intellilight/control"
	"intellilight/journal"
	"intellilight/logger"
)

type Config struct {
	Addr string `yaml:"addr" envconfig:"INTELLILIGHT_HTTP_ADDR"`
	// How long the last reading is served after the loop stopped producing
	// new ones
	ReadingTTL time.Duration `yaml:"reading_ttl"`
}

const (
	eventStream = "events"
	latestKey   = "latest"
)

type Journal interface {
	Recent(ctx context.Context, n int) ([]journal.Entry, error)
}

type StateResponse struct {
	Boot  uuid.UUID     `json:"boot"`
	Phase control.Phase `json:"phase"`
	State bulb.State    `json:"state"`
}

type dispatchEvent struct {
	Command bulb.Command `json:"command"`
	OK      bool         `json:"ok"`
	Error   string       `json:"error,omitempty"`
	State   bulb.State   `json:"state"`
}

// Server exposes the light over HTTP for the whole lifetime of the process,
// across boot cycles
type Server struct {
	config   Config
	router   *mux.Router
	events   *sse.Server
	readings *ttlcache.Cache[string, control.Reading]
	journal  Journal
	log      *logger.Logger

	mu    sync.Mutex
	boot  uuid.UUID
	phase control.Phase
	state bulb.State
}

// New creates the server, journal is optional
func New(config Config, journal Journal, log *logger.Logger) *Server {
	if config.ReadingTTL == 0 {
		config.ReadingTTL = 10 * time.Second
	}

	s := &Server{
		config: config,
		router: mux.NewRouter(),
		events: sse.New(),
		readings: ttlcache.New(
			ttlcache.WithTTL[string, control.Reading](config.ReadingTTL),
			ttlcache.WithDisableTouchOnHit[string, control.Reading](),
		),
		journal: journal,
		log:     log.Named("status"),
	}

	s.events.AutoReplay = false
	s.events.CreateStream(eventStream)

	go s.readings.Start()

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/state", s.currentState).Methods(http.MethodGet)
	s.router.HandleFunc("/reading", s.latestReading).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.stream).Methods(http.MethodGet)
	if journal != nil {
		s.router.HandleFunc("/dispatches", s.dispatches).Methods(http.MethodGet)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := http.Server{
		Addr:    s.config.Addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Streams never finish on their own
		s.events.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("Failed to shut down cleanly", "err", err)
		}
	}()

	s.log.Infow("Starting server", "addr", s.config.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Close() {
	s.readings.Stop()
	s.events.Close()
}

// Boot starts reporting a new boot cycle
func (s *Server) Boot(id uuid.UUID) control.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.boot = id
	s.phase = control.AwakeBulbOff
	s.state = bulb.State{}

	return s
}

func (s *Server) OnReading(r control.Reading) {
	s.readings.Set(latestKey, r, ttlcache.DefaultTTL)
}

func (s *Server) OnDispatch(d control.Dispatch) {
	s.mu.Lock()
	s.state = d.State
	s.mu.Unlock()

	event := dispatchEvent{Command: d.Command, OK: d.Err == nil, State: d.State}
	if d.Err != nil {
		event.Error = d.Err.Error()
	}

	s.publish("dispatch", event)
}

func (s *Server) OnPhase(p control.Phase, state bulb.State) {
	s.mu.Lock()
	s.phase = p
	s.state = state
	boot := s.boot
	s.mu.Unlock()

	s.publish("phase", StateResponse{Boot: boot, Phase: p, State: state})
}

func (s *Server) publish(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Errorw("Failed to encode event", "event", event, "err", err)
		return
	}

	s.events.Publish(eventStream, &sse.Event{Event: []byte(event), Data: data})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) currentState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StateResponse{Boot: s.boot, Phase: s.phase, State: s.state}
	s.mu.Unlock()

	writeJSON(w, resp)
}

func (s *Server) latestReading(w http.ResponseWriter, r *http.Request) {
	item := s.readings.Get(latestKey)
	if item == nil {
		http.Error(w, "no recent reading", http.StatusNotFound)
		return
	}

	writeJSON(w, item.Value())
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("stream", eventStream)
	r.URL.RawQuery = q.Encode()

	s.events.ServeHTTP(w, r)
}

func (s *Server) dispatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warnw("Failed to read journal", "err", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, entries)
}
