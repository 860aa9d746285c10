package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

// createClientWithOrders обрабатывает POST /clients/{id}/commandes.
func (a *API) createClientWithOrders(w http.ResponseWriter, r *http.Request) {
	var input domain.Client
	if err := a.decodeJSON(w, r, &input); err != nil {
		a.writeError(w, r, err)
		return
	}

	saved, err := a.svc.CreateWithOrders(r.Context(), mux.Vars(r)["id"], input)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// listClientOrders обрабатывает GET /clients/{id}/commandes.
func (a *API) listClientOrders(w http.ResponseWriter, r *http.Request) {
	clientID, page, err := clientAndPage(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.svc.ListClientOrders(r.Context(), clientID, page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// listOrdersPage обрабатывает GET /clients/{id}/commandes/page.
func (a *API) listOrdersPage(w http.ResponseWriter, r *http.Request) {
	clientID, page, err := clientAndPage(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.svc.ListOrders(r.Context(), clientID, page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// deleteClient обрабатывает DELETE /clients/{id}.
func (a *API) deleteClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.svc.DeleteClient(r.Context(), clientID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.NewValidationError("body", "request body is required")
		case errors.As(err, &maxErr):
			return domain.NewValidationError("body", fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		default:
			return domain.NewValidationError("body", "malformed JSON: "+err.Error())
		}
	}
	return nil
}

func clientAndPage(r *http.Request) (int64, domain.Page, error) {
	verr := &domain.ValidationError{}

	clientID := readClientID(mux.Vars(r)["id"], verr)
	page := parsePage(r, verr)

	if err := verr.OrNil(); err != nil {
		return 0, domain.Page{}, err
	}
	return clientID, page, nil
}

func parseClientID(raw string) (int64, error) {
	verr := &domain.ValidationError{}
	id := readClientID(raw, verr)
	return id, verr.OrNil()
}

func readClientID(raw string, verr *domain.ValidationError) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		verr.Add("id", "must be an integer")
		return 0
	}
	return id
}

// parsePage читает page и size из query; по умолчанию 0 и 10.
func parsePage(r *http.Request, verr *domain.ValidationError) domain.Page {
	page := domain.DefaultPage()
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		value, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			verr.Add("page", "must be an integer")
		case value < 0:
			verr.Add("page", "must be >= 0")
		default:
			page.Index = value
		}
	}
	if raw := strings.TrimSpace(query.Get("size")); raw != "" {
		value, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			verr.Add("size", "must be an integer")
		case value < 1:
			verr.Add("size", "must be >= 1")
		default:
			page.Size = value
		}
	}
	return page
}
