package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"msgrelay/internal/domain"
)

// handleHealth reports cheap aggregate counters.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := a.queue.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UnixMilli(),
		"uptime":         int64(a.metrics.Uptime().Seconds()),
		"connections":    a.metrics.Connections(),
		"queuedMessages": stats.Messages,
	})
}

type storeKeyRequest struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

// handleStoreKey upserts one public key record.
func (a *API) handleStoreKey(w http.ResponseWriter, r *http.Request) {
	var req storeKeyRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	rec, err := a.directory.Store(addr, req.PublicKey)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleGetKey(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	rec, ok := a.directory.Get(addr)
	if !ok {
		writeComponentError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type batchRequest struct {
	Addresses []string `json:"addresses"`
}

// parseBatch canonicalizes a batch of addresses, enforcing the batch cap.
// Invalid entries are dropped: they cannot name a stored record.
func (a *API) parseBatch(w http.ResponseWriter, r *http.Request) ([]domain.Address, bool) {
	var req batchRequest
	if !a.decodeBody(w, r, &req) {
		return nil, false
	}
	if len(req.Addresses) > a.cfg.MaxBatch {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "batch exceeds the configured maximum")
		return nil, false
	}
	addrs := make([]domain.Address, 0, len(req.Addresses))
	for _, raw := range req.Addresses {
		if addr, err := domain.ParseAddress(raw); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs, true
}

func (a *API) handleKeyBatch(w http.ResponseWriter, r *http.Request) {
	addrs, ok := a.parseBatch(w, r)
	if !ok {
		return
	}
	keys, err := a.directory.GetBatch(addrs)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (a *API) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	a.directory.Delete(addr)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetMessages is a non-destructive read of the queued envelopes.
func (a *API) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	msgs := a.queue.Peek(addr)
	if msgs == nil {
		msgs = []domain.Envelope{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (a *API) handleQueueSize(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queueSize": a.queue.Size(addr)})
}

func (a *API) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	a.queue.Clear(addr)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	stats := a.queue.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"queuedMessages":  stats.Messages,
		"queuedAddresses": stats.Addresses,
		"delivered":       a.metrics.Delivered(),
		"queued":          a.metrics.Queued(),
		"evicted":         a.metrics.Evicted(),
		"expired":         a.metrics.Expired(),
		"connections":     a.metrics.Connections(),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":   addr,
		"online":    a.registry.Online(addr),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (a *API) handleStatusBatch(w http.ResponseWriter, r *http.Request) {
	addrs, ok := a.parseBatch(w, r)
	if !ok {
		return
	}
	statuses := make(map[domain.Address]bool, len(addrs))
	for _, addr := range addrs {
		statuses[addr] = a.registry.Online(addr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
}

func (a *API) handleOnlineAll(w http.ResponseWriter, r *http.Request) {
	addrs := a.registry.OnlineAddresses()
	if addrs == nil {
		addrs = []domain.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": addrs})
}
