package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/session"
	"lyrics-sync-go/stats"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// sseHeartbeat keeps idle event streams open through proxies
var sseHeartbeat = 15 * time.Second

// lookupSession resolves {id} and writes a 404 when it is unknown
func lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := sessionManager.Get(mux.Vars(r)["id"])
	if err != nil {
		Respond(w, r).Error(http.StatusNotFound, err.Error())
		return nil, false
	}
	return s, true
}

// rejectCacheOnly refuses requests that would start a provider lookup while
// the client is limited to cached data
func rejectCacheOnly(w http.ResponseWriter, r *http.Request) bool {
	if cacheOnly, _ := r.Context().Value(cacheOnlyModeKey).(bool); cacheOnly {
		w.Header().Set("Retry-After", "1")
		Respond(w, r).Error(http.StatusTooManyRequests, "Rate limit exceeded. Loading a song requires the normal rate limit tier.")
		return true
	}
	return false
}

func createSession(w http.ResponseWriter, r *http.Request) {
	if rejectCacheOnly(w, r) {
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	if err := checkLocalPath(req.FilePath); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}

	s, err := sessionManager.Create(req.Request)
	switch {
	case errors.Is(err, session.ErrClosed):
		Respond(w, r).Error(http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}

	if req.PositionMs > 0 {
		s.SeekTo(req.PositionMs)
	}
	if req.Playing {
		s.Play()
	}

	stats.Get().SessionsCreated.Add(1)
	log.Infof("%s Created session %s for %s", logcolors.LogSession, logcolors.Session(s.ID()), req.Request)

	w.Header().Set("Location", "/sessions/"+s.ID())
	Respond(w, r).Status(http.StatusCreated, s.Snapshot())
}

// listSessions exposes every listener's session id, so it is admin only
func listSessions(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list := sessionManager.List()
	snapshots := make([]session.Snapshot, 0, len(list))
	for _, s := range list {
		snapshots = append(snapshots, s.Snapshot())
	}
	Respond(w, r).JSON(map[string]interface{}{
		"count":    len(snapshots),
		"sessions": snapshots,
	})
}

func getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}
	Respond(w, r).JSON(s.Snapshot())
}

func deleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := sessionManager.Close(id); err != nil {
		Respond(w, r).Error(http.StatusNotFound, err.Error())
		return
	}
	log.Infof("%s Closed session %s", logcolors.LogSession, logcolors.Session(id))
	w.WriteHeader(http.StatusNoContent)
}

// updatePosition applies a player update. Seek happens before play or pause
// so a single request can jump and resume.
func updatePosition(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}

	var req PositionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	if req.Speed != nil {
		if err := s.SetSpeed(*req.Speed); err != nil {
			Respond(w, r).Error(http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.PositionMs != nil {
		s.SeekTo(*req.PositionMs)
	}
	if req.Playing != nil {
		if *req.Playing {
			s.Play()
		} else {
			s.Pause()
		}
	}

	log.Debugf("%s %s at %s", logcolors.LogCursor, logcolors.Session(s.ID()), s.Clock().Snapshot().Position)
	Respond(w, r).JSON(s.Snapshot())
}

// getSessionActive answers a cursor query for ?t= (milliseconds) without moving the clock.
// Without t the current playback position is used.
func getSessionActive(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}

	timeMs := s.Clock().Position()
	if t := r.URL.Query().Get("t"); t != "" {
		parsed, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			Respond(w, r).Error(http.StatusBadRequest, fmt.Sprintf("invalid t %q", t))
			return
		}
		timeMs = parsed
	}

	if doc, ok := lyrics.Document(s.State()); ok {
		Respond(w, r).JSON(newActiveResponse(doc, timeMs))
		return
	}
	Respond(w, r).JSON(ActiveResponse{
		TimeMs:    timeMs,
		LineIndex: lyrics.NoMatch,
		WordIndex: lyrics.NoMatch,
	})
}

func changeSong(w http.ResponseWriter, r *http.Request) {
	if rejectCacheOnly(w, r) {
		return
	}
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}

	var req providers.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}
	if err := checkLocalPath(req.FilePath); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}

	switch err := s.ChangeSong(req); {
	case errors.Is(err, session.ErrClosed):
		Respond(w, r).Error(http.StatusGone, err.Error())
		return
	case err != nil:
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}

	log.Infof("%s Session %s switched to %s", logcolors.LogSession, logcolors.Session(s.ID()), req)
	Respond(w, r).Status(http.StatusAccepted, s.Snapshot())
}

// writeEvent writes one server-sent event
func writeEvent(w http.ResponseWriter, name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

// streamEvents sends the session snapshot followed by a cursor event every
// time the active line, word or load state changes. The stream ends when the
// client goes away or the session closes.
func streamEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Respond(w, r).Error(http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	events, cancel := s.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", s.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	log.Infof("%s Client %s subscribed to %s", logcolors.LogSession, r.RemoteAddr, logcolors.Session(s.ID()))
	defer log.Infof("%s Client %s unsubscribed from %s", logcolors.LogSession, r.RemoteAddr, logcolors.Session(s.ID()))

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				writeEvent(w, "closed", map[string]string{"sessionId": s.ID()})
				flusher.Flush()
				return
			}
			if err := writeEvent(w, "cursor", event); err != nil {
				return
			}
			stats.Get().EventsStreamed.Add(1)
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
