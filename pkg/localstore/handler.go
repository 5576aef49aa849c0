package localstore

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matst80/dataview-sample/pkg/common"
	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/matst80/dataview-sample/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataview_local_requests_total",
		Help: "The total number of handled data view api requests",
	}, []string{"route", "code"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataview_local_request_duration_seconds",
		Help:    "Time spent handling data view api requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// NamespacePath is the route prefix every namespaced resource lives under.
const NamespacePath = "/api/{version}/Tenants/{tenant}/Namespaces/{ns}"

// Handler exposes a Remote Store over the data view REST api.
type Handler struct {
	// PageSize is the interpolated page size used when a request sets no count.
	PageSize int
	store    types.RemoteStore
	issuer   *TokenIssuer
	mux      *http.ServeMux
}

// NewHandler builds the routes. A nil issuer disables the token endpoint and
// bearer authentication.
func NewHandler(store types.RemoteStore, issuer *TokenIssuer) *Handler {
	h := &Handler{store: store, issuer: issuer, mux: http.NewServeMux()}
	h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	if h.issuer != nil {
		h.mux.Handle("POST /identity/connect/token", instrument("token", http.HandlerFunc(h.issuer.TokenHandler)))
	}

	h.handle("POST /Types/{id}", "create_type", h.createType)
	h.handle("DELETE /Types/{id}", "delete_type", h.deleteType)

	h.handle("POST /Streams/{id}", "create_stream", h.createStream)
	h.handle("PUT /Streams/{id}", "update_stream", h.createStream)
	h.handle("POST /Streams/{id}/Data", "insert_values", h.insertValues)
	h.handle("DELETE /Streams/{id}", "delete_stream", h.deleteStream)

	h.handle("POST /DataViews/{id}", "create_view", h.createView)
	h.handle("GET /DataViews/{id}", "get_view", h.getView)
	h.handle("PUT /DataViews/{id}", "put_view", h.putView)
	h.handle("DELETE /DataViews/{id}", "delete_view", h.deleteView)

	h.handle("GET /DataViews/{id}/Resolved/DataItems/{query}", "resolved_items", h.resolvedItems)
	h.handle("GET /DataViews/{id}/Resolved/IneligibleDataItems/{query}", "ineligible_items", h.ineligibleItems)
	h.handle("GET /DataViews/{id}/Resolved/AvailableFieldSets", "available_field_sets", h.availableFieldSets)
	h.handle("GET /DataViews/{id}/Data/Interpolated", "interpolated", h.interpolated)
}

func (h *Handler) handle(pattern, route string, fn func(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error) {
	method, path, _ := strings.Cut(pattern, " ")
	var next http.Handler = common.JsonHandler(fn)
	if h.issuer != nil {
		next = h.issuer.AuthMiddleware(next)
	}
	h.mux.Handle(method+" "+NamespacePath+path, instrument(route, next))
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := common.StatusRecorder(w)
		next.ServeHTTP(rec, r)
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.Status())).Inc()
	})
}

func decodeBody(op string, r *http.Request, v any) error {
	if err := jsoncompat.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(op, "invalid request body: %v", err)
	}
	return nil
}

// pathID checks that a body id, when given, matches the id in the url.
func pathID(op string, r *http.Request, bodyID *string) error {
	id := r.PathValue("id")
	if *bodyID == "" {
		*bodyID = id
	}
	if *bodyID != id {
		return badRequest(op, "body id %q does not match path id %q", *bodyID, id)
	}
	return nil
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	t := &types.SdsType{}
	if err := decodeBody("create type", r, t); err != nil {
		return err
	}
	if err := pathID("create type", r, &t.Id); err != nil {
		return err
	}
	created, err := h.store.CreateType(r.Context(), r.PathValue("ns"), t)
	if err != nil {
		return err
	}
	return enc.Encode(created)
}

func (h *Handler) deleteType(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	if err := h.store.DeleteType(r.Context(), r.PathValue("ns"), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) createStream(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	s := &types.SdsStream{}
	if err := decodeBody("create stream", r, s); err != nil {
		return err
	}
	if err := pathID("create stream", r, &s.Id); err != nil {
		return err
	}
	if err := h.store.CreateOrUpdateStream(r.Context(), r.PathValue("ns"), s); err != nil {
		return err
	}
	return enc.Encode(s)
}

func (h *Handler) insertValues(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("insert values", "read body: %v", err)
	}
	if err := h.store.InsertValues(r.Context(), r.PathValue("ns"), r.PathValue("id"), body); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) deleteStream(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	if err := h.store.DeleteStream(r.Context(), r.PathValue("ns"), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) createView(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	view := &types.DataView{}
	if err := decodeBody("create data view", r, view); err != nil {
		return err
	}
	if err := pathID("create data view", r, &view.Id); err != nil {
		return err
	}
	ns := r.PathValue("ns")
	if err := h.store.CreateView(r.Context(), ns, view); err != nil {
		return err
	}
	created, err := h.store.GetView(r.Context(), ns, view.Id)
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusCreated)
	return enc.Encode(created)
}

func (h *Handler) getView(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	view, err := h.store.GetView(r.Context(), r.PathValue("ns"), r.PathValue("id"))
	if err != nil {
		return err
	}
	return enc.Encode(view)
}

func (h *Handler) putView(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	view := &types.DataView{}
	if err := decodeBody("put data view", r, view); err != nil {
		return err
	}
	if err := pathID("put data view", r, &view.Id); err != nil {
		return err
	}
	if err := h.store.PutView(r.Context(), r.PathValue("ns"), view); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) deleteView(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	if err := h.store.DeleteView(r.Context(), r.PathValue("ns"), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) resolvedItems(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	items, err := h.store.ResolveDataItems(r.Context(), r.PathValue("ns"), r.PathValue("id"), r.PathValue("query"))
	if err != nil {
		return err
	}
	return enc.Encode(items)
}

func (h *Handler) ineligibleItems(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	items, err := h.store.ResolveIneligibleDataItems(r.Context(), r.PathValue("ns"), r.PathValue("id"), r.PathValue("query"))
	if err != nil {
		return err
	}
	return enc.Encode(items)
}

func (h *Handler) availableFieldSets(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	sets, err := h.store.ResolveAvailableFieldSets(r.Context(), r.PathValue("ns"), r.PathValue("id"))
	if err != nil {
		return err
	}
	return enc.Encode(sets)
}

func (h *Handler) interpolated(w http.ResponseWriter, r *http.Request, enc jsoncompat.Encoder) error {
	const op = "get interpolated data"
	req, err := types.InterpolationRequestFromQuery(r.URL.Query())
	if err != nil {
		return badRequest(op, "%v", err)
	}
	start, end, interval, err := req.Window()
	if err != nil {
		return badRequest(op, "%v", err)
	}
	offset, err := req.Offset()
	if err != nil {
		return badRequest(op, "%v", err)
	}
	table, err := h.store.GetInterpolatedData(r.Context(), r.PathValue("ns"), r.PathValue("id"), start, end, interval)
	if err != nil {
		return err
	}
	offset = min(offset, len(table))
	size := req.PageSize()
	if req.Count <= 0 && h.PageSize > 0 {
		size = h.PageSize
	}
	stop := min(offset+size, len(table))
	page := table[offset:stop]
	if page == nil {
		page = types.Table{}
	}
	if stop < len(table) {
		next := *req
		next.ContinuationToken = strconv.Itoa(stop)
		values, err := next.Values()
		if err != nil {
			return err
		}
		w.Header().Set("Link", fmt.Sprintf("<%s>; rel=\"next\"", absoluteURL(r, values.Encode())))
	}
	return enc.Encode(page)
}

func absoluteURL(r *http.Request, rawQuery string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s?%s", scheme, r.Host, r.URL.EscapedPath(), rawQuery)
}
