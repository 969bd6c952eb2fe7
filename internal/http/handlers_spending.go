package http

import (
	"net/http"
	"strconv"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/period"
)

// handleListSpendings lists spendings between ?start= and ?end=, in the
// period containing ?date=, or in the current period.
func (s *Server) handleListSpendings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter, err := parseSpendingFilter(query)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if filter.Range == nil {
		d, err := parseDateQuery(query, "date")
		if err != nil {
			s.writeError(w, r, log.OpList, err)
			return
		}
		if !d.IsZero() {
			rng := s.budget.PeriodFor(r.Context(), d).Range
			filter.Range = &rng
		}
	}

	list, err := s.budget.ListSpendings(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(list).Write(w)
}

func (s *Server) handleCreateSpending(w http.ResponseWriter, r *http.Request) {
	var req spendingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}
	sp, err := req.toSpending()
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}

	created, err := s.budget.AddSpending(r.Context(), sp)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/spendings/"+strconv.FormatInt(created.ID, 10)).
		Data(created).
		Write(w)
}

func (s *Server) handleDeleteSpending(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.budget.DeleteSpending)
}

// handleStats reports per-category spending between ?start= and ?end=, for
// the period containing ?date=, or for the current period.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rng, err := parseRangeQuery(query)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}

	var stats core.PeriodStats
	if rng != nil {
		stats, err = s.budget.StatsForRange(r.Context(), *rng)
	} else {
		var d period.Date
		if d, err = parseDateQuery(query, "date"); err != nil {
			s.writeError(w, r, log.OpRead, err)
			return
		}
		stats, err = s.budget.Stats(r.Context(), d)
	}
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}

	over := stats.OverBudget()
	if over == nil {
		over = []core.CategoryStat{}
	}
	NewJSONResponse().Data(struct {
		core.PeriodStats
		OverBudget []core.CategoryStat `json:"overBudget"`
	}{stats, over}).Write(w)
}
