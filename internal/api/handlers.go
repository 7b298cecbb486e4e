package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"traffic-analytics/internal/analytics"
	"traffic-analytics/internal/models"
	"traffic-analytics/internal/stream"
)

var errBadParam = errors.New("bad parameter")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, stream.ErrMalformedInput),
		errors.Is(err, stream.ErrInvalidGrid),
		errors.Is(err, analytics.ErrInvalidAlphabet):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnknownSensor),
		errors.Is(err, stream.ErrNotFound),
		errors.Is(err, stream.ErrUnknownFeature):
		status = http.StatusNotFound
	case errors.Is(err, analytics.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*stream.Stream, string, bool) {
	id := mux.Vars(r)["id"]
	st, uploadID, err := s.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return nil, "", false
	}
	return st, uploadID, true
}

func parseTime(q url.Values, key string, fallback time.Time) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return fallback, nil
	}
	t, err := stream.ParseTimestamp(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", errBadParam, key, err)
	}
	return t, nil
}

// parseRange reads start and end, defaulting to a window that covers the
// whole stream.
func parseRange(q url.Values, st *stream.Stream) (time.Time, time.Time, error) {
	first, last := st.TimeRange()
	start, err := parseTime(q, "start", first)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime(q, "end", last.Add(st.Frequency()))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func requireColumn(q url.Values) (string, error) {
	column := q.Get("column")
	if column == "" {
		return "", fmt.Errorf("%w: column is required", errBadParam)
	}
	return column, nil
}

func streamInfo(id, uploadID string, st *stream.Stream) models.StreamInfo {
	first, last := st.TimeRange()
	return models.StreamInfo{
		SensorID:  id,
		UploadID:  uploadID,
		Start:     first,
		End:       last,
		Length:    st.Len(),
		Frequency: st.Frequency().String(),
		GapFill:   st.GapFill().String(),
		Features:  st.FeatureNames(),
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	st, uploadID, err := s.registry.Put(id, data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, streamInfo(id, uploadID, st))
}

func (s *Server) streamInfoHandler(w http.ResponseWriter, r *http.Request) {
	st, uploadID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, streamInfo(mux.Vars(r)["id"], uploadID, st))
}

func (s *Server) featuresHandler(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st.FeatureNames())
}

func (s *Server) windowHandler(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	column, err := requireColumn(q)
	if err != nil {
		writeError(w, err)
		return
	}
	start, end, err := parseRange(q, st)
	if err != nil {
		writeError(w, err)
		return
	}

	values, err := st.Window(column, start, end)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"column": column,
		"start":  start,
		"end":    end,
		"values": values,
	})
}

func (s *Server) pointHandler(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("at") == "" {
		writeError(w, fmt.Errorf("%w: at is required", errBadParam))
		return
	}
	at, err := parseTime(q, "at", time.Time{})
	if err != nil {
		writeError(w, err)
		return
	}

	reading, err := st.PointAtOrAfter(at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) frameHandler(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, end, err := parseRange(q, st)
	if err != nil {
		writeError(w, err)
		return
	}

	var columns []string
	if v := q.Get("columns"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				columns = append(columns, c)
			}
		}
	}

	frame, err := st.Frame(start, end, columns...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// statisticsKey scopes a cache entry to one upload and one resample
// generation, so values computed from a replaced stream are never served.
func statisticsKey(id, uploadID string, generation uint64, column string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s:%d:%d", id, uploadID, generation, column, start.UnixNano(), end.UnixNano())
}

func (s *Server) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	st, uploadID, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	column, err := requireColumn(q)
	if err != nil {
		writeError(w, err)
		return
	}
	start, end, err := parseRange(q, st)
	if err != nil {
		writeError(w, err)
		return
	}

	key := statisticsKey(mux.Vars(r)["id"], uploadID, st.Generation(), column, start, end)
	cached, err := s.store.GetStatistics(key)
	if err != nil {
		log.Printf("Failed to read cached statistics %s: %v", key, err)
	}
	if cached != nil {
		statisticsCacheHits.Inc()
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := analytics.WindowStatistics(st, column, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.StoreStatistics(key, stats, s.statsTTL); err != nil {
		log.Printf("Failed to cache statistics %s: %v", key, err)
	}

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) distributionHandler(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	column, err := requireColumn(q)
	if err != nil {
		writeError(w, err)
		return
	}
	start, end, err := parseRange(q, st)
	if err != nil {
		writeError(w, err)
		return
	}
	alphabet := 0
	if v := q.Get("alphabet"); v != "" {
		if alphabet, err = strconv.Atoi(v); err != nil {
			writeError(w, fmt.Errorf("%w: alphabet: %v", errBadParam, err))
			return
		}
	}

	result, err := s.analyzer.Analyze(st, column, start, end, alphabet)
	if err != nil {
		writeError(w, err)
		return
	}
	result.SensorID = mux.Vars(r)["id"]

	if result.Distribution != nil {
		distributionsComputed.Inc()
	} else {
		insufficientWindows.Inc()
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) resampleHandler(w http.ResponseWriter, r *http.Request) {
	st, uploadID, ok := s.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	first, last := st.TimeRange()
	start, err := parseTime(q, "start", first)
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseTime(q, "end", last)
	if err != nil {
		writeError(w, err)
		return
	}
	frequency := st.Frequency()
	if v := q.Get("frequency"); v != "" {
		if frequency, err = time.ParseDuration(v); err != nil {
			writeError(w, fmt.Errorf("%w: frequency: %v", errBadParam, err))
			return
		}
	}

	if err := st.Resample(start, end, frequency); err != nil {
		writeError(w, err)
		return
	}

	id := mux.Vars(r)["id"]
	report := st.LastReport()
	observeNormalization(report)
	if err := s.store.InvalidateStatistics(id); err != nil {
		log.Printf("Failed to invalidate statistics for %s: %v", id, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stream": streamInfo(id, uploadID, st),
		"report": report,
	})
}

func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.GetCurrentStats())
}
