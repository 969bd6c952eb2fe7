package http

import (
	"net/http"
	"strings"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/period"
	"budget/internal/services"
	"budget/internal/settings"
)

// handlePeriod returns the period containing ?date=, or today.
func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	d, err := parseDateQuery(r.URL.Query(), "date")
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}

	var info services.PeriodInfo
	if d.IsZero() {
		info = s.budget.CurrentPeriod(r.Context())
	} else {
		info = s.budget.PeriodFor(r.Context(), d)
	}
	NewJSONResponse().Data(info).Write(w)
}

// handlePeriodPreview computes a period under a start day that has not been
// saved yet.
func (s *Server) handlePeriodPreview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	raw := strings.TrimSpace(query.Get("monthStartDay"))
	if raw == "" {
		s.writeError(w, r, log.OpValidate, badRequest("monthStartDay is required"))
		return
	}
	day, err := period.ParseStartDay(raw)
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	d, err := parseDateQuery(query, "date")
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}

	info, err := s.budget.Preview(d, day)
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	NewJSONResponse().Data(info).Write(w)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.All(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(map[string]any{"settings": all}).Write(w)
}

type settingResponse struct {
	core.Setting
	CurrentPeriod *services.PeriodInfo `json:"currentPeriod,omitempty"`
}

// handleUpdateSetting stores one setting. Changing the month start day also
// reports the current period under the new value.
func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))

	var req settingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}
	if req.Value == nil {
		s.writeError(w, r, log.OpValidate, badRequest("value is required"))
		return
	}

	saved, err := s.settings.Update(r.Context(), key, string(*req.Value))
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	resp := settingResponse{Setting: saved}
	if saved.Key == settings.KeyMonthStartDay {
		info := s.budget.CurrentPeriod(r.Context())
		resp.CurrentPeriod = &info
	}
	NewJSONResponse().Data(resp).Write(w)
}
