package api

import (
	"encoding/json"
	"net/http"

	"github.com/magnumstream/studio-agent/internal/studio"
)

func listSalesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sales, err := cfg.Service.ListSales(r.Context(), r.URL.Query().Get("recordingId"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if sales == nil {
			sales = []*studio.Sale{}
		}
		WriteJSON(w, http.StatusOK, SalesResponse{Sales: sales})
	}
}

func createSaleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req studio.NewSale
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
			return
		}
		if req.RecordingID == "" {
			WriteError(w, http.StatusBadRequest, "recordingId is required", CodeBadRequest)
			return
		}
		sale, err := cfg.Service.CreateSale(r.Context(), req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, sale)
	}
}
