package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ontoserve/warden/pkg/httputil"
)

// Handlers serves the audit trail query API. This surface exposes
// denial reasons, so deployments gate it behind an administrative
// permission.
type Handlers struct {
	store *DBLogger
}

// NewHandlers creates audit query handlers over the database logger.
func NewHandlers(store *DBLogger) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the audit routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.SearchEvents).Methods("GET")
}

// SearchEvents lists audit events, newest first, filtered by query
// parameters.
func (h *Handlers) SearchEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	events, searchErr := h.store.Search(r.Context(), filter)
	if searchErr != nil {
		httputil.WriteInternalError(w, searchErr)
		return
	}
	if events == nil {
		events = []*Event{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"events": events})
}

func filterFromQuery(r *http.Request) (SearchFilter, error) {
	q := r.URL.Query()
	filter := SearchFilter{
		Principal:    q.Get("principal"),
		ResourceType: ResourceType(q.Get("resource_type")),
		ResourceID:   q.Get("resource_id"),
	}

	for _, et := range q["event_type"] {
		filter.EventTypes = append(filter.EventTypes, EventType(et))
	}
	if s := q.Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if s := q.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, errBadTime("start")
		}
		filter.StartTime = &t
	}
	if s := q.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, errBadTime("end")
		}
		filter.EndTime = &t
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, errBadInt("limit")
		}
		filter.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, errBadInt("offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

type queryError string

func (e queryError) Error() string { return string(e) }

func errBadTime(param string) error {
	return queryError(param + " must be an RFC3339 timestamp")
}

func errBadInt(param string) error {
	return queryError(param + " must be a non-negative integer")
}
