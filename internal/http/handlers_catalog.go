package http

import (
	"net/http"
	"strconv"

	"budget/internal/core"
	"budget/internal/log"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.budget.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(map[string]any{"categories": list}).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}
	c, err := req.toCategory()
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}

	created, err := s.budget.CreateCategory(r.Context(), c)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/categories/"+strconv.FormatInt(created.ID, 10)).
		Data(created).
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}
	c, err := req.toCategory()
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	c.ID = id

	updated, err := s.budget.UpdateCategory(r.Context(), c)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(updated).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.budget.DeleteCategory)
}

func (s *Server) handleListSubcategories(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	list, err := s.budget.ListSubcategories(r.Context(), id, sanitizeInput(r.URL.Query().Get("search")))
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(map[string]any{"subcategories": list}).Write(w)
}

func (s *Server) handleCreateSubcategory(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	var req subcategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}

	created, err := s.budget.CreateSubcategory(r.Context(), core.Subcategory{
		CategoryID: id,
		Name:       sanitizeInput(req.Name),
	})
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(created).Write(w)
}

func (s *Server) handleDeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.budget.DeleteSubcategory)
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	list, err := s.budget.ListPaymentMethods(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(map[string]any{"paymentMethods": list}).Write(w)
}

func (s *Server) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}

	created, err := s.budget.CreatePaymentMethod(r.Context(), core.PaymentMethod{
		Name: sanitizeInput(req.Name),
		Icon: sanitizeInput(req.Icon),
	})
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(created).Write(w)
}

func (s *Server) handleUpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	var req paymentMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}

	updated, err := s.budget.UpdatePaymentMethod(r.Context(), core.PaymentMethod{
		ID:   id,
		Name: sanitizeInput(req.Name),
		Icon: sanitizeInput(req.Icon),
	})
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(updated).Write(w)
}

type defaultPaymentMethodResponse struct {
	DefaultPaymentMethod *core.PaymentMethod `json:"defaultPaymentMethod"`
}

// handleDefaultPaymentMethod returns a null method when none is set.
func (s *Server) handleDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	p, ok, err := s.budget.DefaultPaymentMethod(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	var resp defaultPaymentMethodResponse
	if ok {
		resp.DefaultPaymentMethod = &p
	}
	NewJSONResponse().Data(resp).Write(w)
}

func (s *Server) handleSetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req defaultPaymentMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}
	if req.PaymentMethodID <= 0 {
		s.writeError(w, r, log.OpValidate, badRequest("paymentMethodId is required"))
		return
	}

	p, err := s.budget.SetDefaultPaymentMethod(r.Context(), req.PaymentMethodID)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(defaultPaymentMethodResponse{DefaultPaymentMethod: &p}).Write(w)
}

func (s *Server) handleDeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.budget.DeletePaymentMethod)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := s.budget.ListMembers(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(map[string]any{"members": list}).Write(w)
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}

	created, err := s.budget.CreateMember(r.Context(), core.Member{
		Username: sanitizeInput(req.Username),
		Role:     req.Role,
	})
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(created).Write(w)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	var req memberUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpParse, err)
		return
	}

	updated, err := s.budget.UpdateMember(r.Context(), id, req.toUpdate())
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(updated).Write(w)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.budget.DeleteMember)
}
