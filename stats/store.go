package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	statsBucketName = "stats"
	statsKey        = "server_stats"
)

// Store persists cumulative counters in their own bbolt file so they survive restarts
type Store struct {
	db       *bolt.DB
	stats    *Stats
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PersistedStats is the on-disk form of Stats
type PersistedStats struct {
	Counters            map[string]int64 `json:"counters"`
	TotalResponseTime   int64            `json:"total_response_time"`
	ResponseCount       int64            `json:"response_count"`
	MinResponseTime     int64            `json:"min_response_time"`
	MaxResponseTime     int64            `json:"max_response_time"`
	LyricsResponseTime  int64            `json:"lyrics_response_time"`
	LyricsResponseCount int64            `json:"lyrics_response_count"`
	ProviderHits        map[string]int64 `json:"provider_hits"`
	LastSaved           time.Time        `json:"last_saved"`
	FirstStarted        time.Time        `json:"first_started"`
}

// counters names every cumulative counter for persistence
func (s *Stats) counters() map[string]*atomic.Int64 {
	return map[string]*atomic.Int64{
		"total_requests":      &s.TotalRequests,
		"lyrics_requests":     &s.LyricsRequests,
		"parse_requests":      &s.ParseRequests,
		"session_requests":    &s.SessionRequests,
		"cache_requests":      &s.CacheRequests,
		"stats_requests":      &s.StatsRequests,
		"health_requests":     &s.HealthRequests,
		"other_requests":      &s.OtherRequests,
		"cache_hits":          &s.CacheHits,
		"cache_misses":        &s.CacheMisses,
		"negative_cache_hits": &s.NegativeCacheHits,
		"loads_succeeded":     &s.LoadsSucceeded,
		"loads_not_found":     &s.LoadsNotFound,
		"loads_failed":        &s.LoadsFailed,
		"sessions_created":    &s.SessionsCreated,
		"sessions_closed":     &s.SessionsClosed,
		"events_streamed":     &s.EventsStreamed,
		"rate_limit_normal":   &s.RateLimitNormal,
		"rate_limit_cached":   &s.RateLimitCached,
		"rate_limit_exceeded": &s.RateLimitExceeded,
		"status_2xx":          &s.Status2xx,
		"status_4xx":          &s.Status4xx,
		"status_5xx":          &s.Status5xx,
	}
}

// NewStore opens the stats database at dbPath for stats
func NewStore(dbPath string, stats *Stats) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(statsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, dbPath)
	return &Store{db: db, stats: stats, stopChan: make(chan struct{})}, nil
}

// Load applies persisted counters to the store's stats
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted PersistedStats
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(statsBucketName)).Get([]byte(statsKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &persisted)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	st := s.stats
	for name, counter := range st.counters() {
		counter.Store(persisted.Counters[name])
	}
	st.totalResponseTime.Store(persisted.TotalResponseTime)
	st.responseCount.Store(persisted.ResponseCount)
	st.lyricsResponseTime.Store(persisted.LyricsResponseTime)
	st.lyricsResponseCount.Store(persisted.LyricsResponseCount)

	if persisted.MinResponseTime > 0 && persisted.MinResponseTime < maxInt64 {
		st.minResponseTime.Store(persisted.MinResponseTime)
	}
	if persisted.MaxResponseTime > 0 {
		st.maxResponseTime.Store(persisted.MaxResponseTime)
	}

	for name, count := range persisted.ProviderHits {
		counter := &atomic.Int64{}
		counter.Store(count)
		st.providerHits.Store(name, counter)
	}

	if !persisted.FirstStarted.IsZero() {
		st.StartTime = persisted.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (total requests: %d)", logcolors.LogStats, persisted.Counters["total_requests"])
	return nil
}

// Save writes the current counters to disk
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	persisted := PersistedStats{
		Counters:            make(map[string]int64),
		TotalResponseTime:   st.totalResponseTime.Load(),
		ResponseCount:       st.responseCount.Load(),
		MinResponseTime:     st.minResponseTime.Load(),
		MaxResponseTime:     st.maxResponseTime.Load(),
		LyricsResponseTime:  st.lyricsResponseTime.Load(),
		LyricsResponseCount: st.lyricsResponseCount.Load(),
		ProviderHits:        st.ProviderHitsSnapshot(),
		LastSaved:           time.Now(),
		FirstStarted:        st.StartTime,
	}
	for name, counter := range st.counters() {
		persisted.Counters[name] = counter.Load()
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(statsBucketName)).Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// StartAutoSave saves every interval until Close
func (s *Store) StartAutoSave(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Close stops auto-save, saves once more and closes the database
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	if err := s.Save(); err != nil {
		log.Warnf("%s Failed to save stats on close: %v", logcolors.LogStats, err)
	} else {
		log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	}
	return s.db.Close()
}
