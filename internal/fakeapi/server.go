// Package fakeapi is an in-memory stand-in for the talk review server. It
// serves the same routes and payloads, keeps talks and groups in memory and
// lets tests inject failures and hold requests open.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gravitrone/tdome/internal/api"
)

// Route patterns, usable with Fail and Hold.
const (
	RouteListGroups  = "GET /api/groups"
	RouteCreateGroup = "POST /api/groups"
	RouteUpdateGroup = "PUT /api/groups/{number}"
	RoutePatchGroup  = "PATCH /api/groups/{number}"
	RouteDeleteGroup = "DELETE /api/groups/{number}"
	RouteGroupTalks  = "GET /api/groups/{number}/talks"
	RouteUngrouped   = "GET /api/talks/ungrouped"
)

// Failure makes a route answer with an error. Status 0 drops the
// connection without a response. Times limits how many requests fail; 0
// means every request until Clear.
type Failure struct {
	Status  int
	Message string
	Times   int
}

// Request is one request the server received.
type Request struct {
	Method string
	Path   string
	Route  string
}

type group struct {
	number  int
	name    string
	decided *bool
	talks   []int
}

// Server is an http.Handler. It is safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	talks    map[int]api.Talk
	groups   map[int]*group
	owner    map[int]int
	next     int
	failures map[string]*Failure
	holds    map[string]chan struct{}
	requests []Request
	username string
	password string

	mux *http.ServeMux
	log *zap.Logger
}

// New returns an empty server. A nil logger discards output.
func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		talks:    map[int]api.Talk{},
		groups:   map[int]*group{},
		owner:    map[int]int{},
		next:     1,
		failures: map[string]*Failure{},
		holds:    map[string]chan struct{}{},
		mux:      http.NewServeMux(),
		log:      log,
	}
	s.mux.HandleFunc(RouteListGroups, s.listGroups)
	s.mux.HandleFunc(RouteCreateGroup, s.mutating(s.createGroup))
	s.mux.HandleFunc(RouteUpdateGroup, s.mutating(s.updateGroup))
	s.mux.HandleFunc(RoutePatchGroup, s.mutating(s.updateGroup))
	s.mux.HandleFunc(RouteDeleteGroup, s.mutating(s.deleteGroup))
	s.mux.HandleFunc(RouteGroupTalks, s.groupTalks)
	s.mux.HandleFunc(RouteUngrouped, s.ungrouped)
	return s
}

// RequireAuth guards mutating routes with HTTP basic auth.
func (s *Server) RequireAuth(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.password = password
}

// AddTalk adds talks to the ungrouped pool.
func (s *Server) AddTalk(talks ...api.Talk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range talks {
		s.talks[t.ID] = t
	}
}

// SeedGroup creates a group holding the given talks, as if the operator had
// made it earlier.
func (s *Server) SeedGroup(name string, talkIDs ...int) api.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.newGroupLocked(name)
	for _, id := range talkIDs {
		s.assignLocked(g, id)
	}
	return g.wire()
}

// SetDecided flags a group as decided or not.
func (s *Server) SetDecided(number int, decided bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[number]; ok {
		g.decided = &decided
	}
}

// Fail makes route fail as described until Clear or until f.Times runs out.
func (s *Server) Fail(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &f
}

// Clear removes all injected failures.
func (s *Server) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]*Failure{}
}

// Hold blocks requests to route until the returned release is called.
// Requests are still logged on arrival. Release is idempotent.
func (s *Server) Hold(route string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[route] == gate {
				delete(s.holds, route)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Requests returns the requests received so far, oldest first.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Groups returns the server's groups ordered by number.
func (s *Server) Groups() []api.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedGroupsLocked()
}

// Members returns the talk ids held by a group, ascending.
func (s *Server) Members(number int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[number]
	if !ok {
		return nil
	}
	out := slices.Clone(g.talks)
	slices.Sort(out)
	return out
}

// Ungrouped returns the ids of talks without a group, ascending.
func (s *Server) Ungrouped() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.ungroupedLocked(), func(t api.Talk, _ int) int { return t.ID })
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, route := s.mux.Handler(r)
	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Route: route})
	gate := s.holds[route]
	s.mu.Unlock()

	s.log.Debug("fake request", zap.String("method", r.Method), zap.String("path", r.URL.Path))

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if s.injectFailure(w, route) {
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) injectFailure(w http.ResponseWriter, route string) bool {
	s.mu.Lock()
	f, ok := s.failures[route]
	if ok && f.Times > 0 {
		f.Times--
		if f.Times == 0 {
			delete(s.failures, route)
		}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.log.Debug("injected failure", zap.String("route", route), zap.Int("status", f.Status))
	if f.Status == 0 {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return true
			}
		}
		f.Status = http.StatusBadGateway
	}
	writeError(w, f.Status, f.Message)
	return true
}

func (s *Server) mutating(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		user, pass := s.username, s.password
		s.mu.Unlock()
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				w.Header().Set("WWW-Authenticate", `Basic realm="Login Required"`)
				writeError(w, http.StatusUnauthorized, "login required")
				return
			}
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	groups := s.sortedGroupsLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"objects": groups})
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  *string `json:"name"`
		Talks []int   `json:"talks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Name == nil || *body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.firstUnknownLocked(body.Talks); !ok {
		writeError(w, http.StatusBadRequest, "unknown talk "+strconv.Itoa(id))
		return
	}
	g := s.newGroupLocked(*body.Name)
	for _, id := range body.Talks {
		s.assignLocked(g, id)
	}
	writeJSON(w, http.StatusOK, g.wire())
}

func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	var body api.UpdateGroupInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.lookupLocked(w, r)
	if !ok {
		return
	}
	if id, ok := s.firstUnknownLocked(body.Talks); !ok {
		writeError(w, http.StatusBadRequest, "unknown talk "+strconv.Itoa(id))
		return
	}
	if body.Name != nil {
		g.name = *body.Name
	}
	for _, id := range body.Talks {
		s.assignLocked(g, id)
	}
	writeJSON(w, http.StatusOK, g.wire())
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.lookupLocked(w, r)
	if !ok {
		return
	}
	for _, id := range g.talks {
		delete(s.owner, id)
	}
	delete(s.groups, g.number)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) groupTalks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.lookupLocked(w, r)
	if !ok {
		return
	}
	out := make([]api.Talk, 0, len(g.talks))
	for _, id := range g.talks {
		out = append(out, s.talks[id])
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": out})
}

func (s *Server) ungrouped(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := s.ungroupedLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"objects": out})
}

// --- Helpers ---

func (s *Server) newGroupLocked(name string) *group {
	g := &group{number: s.next, name: name, talks: []int{}}
	s.next++
	s.groups[g.number] = g
	return g
}

// assignLocked moves a talk into g, taking it out of any other group.
func (s *Server) assignLocked(g *group, id int) {
	if prev, ok := s.owner[id]; ok {
		if prev == g.number {
			return
		}
		if old, ok := s.groups[prev]; ok {
			old.talks = lo.Without(old.talks, id)
		}
	}
	s.owner[id] = g.number
	g.talks = append(g.talks, id)
}

func (s *Server) firstUnknownLocked(ids []int) (int, bool) {
	for _, id := range ids {
		if _, ok := s.talks[id]; !ok {
			return id, false
		}
	}
	return 0, true
}

func (s *Server) lookupLocked(w http.ResponseWriter, r *http.Request) (*group, bool) {
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	g, ok := s.groups[n]
	if !ok {
		writeError(w, http.StatusNotFound, "group not found")
		return nil, false
	}
	return g, true
}

func (s *Server) sortedGroupsLocked() []api.Group {
	out := make([]api.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.wire())
	}
	slices.SortFunc(out, func(a, b api.Group) int { return a.Number - b.Number })
	return out
}

func (s *Server) ungroupedLocked() []api.Talk {
	out := make([]api.Talk, 0)
	for id, t := range s.talks {
		if _, owned := s.owner[id]; !owned {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b api.Talk) int { return a.ID - b.ID })
	return out
}

func (g *group) wire() api.Group {
	return api.Group{Number: g.number, Name: g.name, Decided: g.decided}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
