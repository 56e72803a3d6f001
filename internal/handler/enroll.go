package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/directory"
)

// ---------- Enrollment (admin) ----------

type institutionRequest struct {
	Code   string `json:"code" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Active *bool  `json:"active"`
}

func (h *Handler) UpsertInstitution(c *gin.Context) {
	var req institutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	inst := directory.Institution{Code: req.Code, Name: req.Name, Active: activeOrDefault(req.Active)}
	if err := h.dir.UpsertInstitution(c.Request.Context(), inst); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

type teacherRequest struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"omitempty,min=8"`
	Active   *bool  `json:"active"`
}

func (h *Handler) UpsertTeacher(c *gin.Context) {
	var req teacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	hash, ok := hashIfSet(c, req.Password)
	if !ok {
		return
	}
	t := directory.Teacher{
		InstitutionCode: c.Param("code"),
		ID:              req.ID,
		Name:            req.Name,
		Email:           req.Email,
		PasswordHash:    hash,
		Active:          activeOrDefault(req.Active),
	}
	if err := h.dir.UpsertTeacher(c.Request.Context(), t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

type studentRequest struct {
	ID        string `json:"id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	ClassName string `json:"class_name"`
	Section   string `json:"section"`
	Password  string `json:"password" binding:"omitempty,min=8"`
	Active    *bool  `json:"active"`
}

func (h *Handler) UpsertStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	hash, ok := hashIfSet(c, req.Password)
	if !ok {
		return
	}
	s := directory.Student{
		InstitutionCode: c.Param("code"),
		ID:              req.ID,
		Name:            req.Name,
		ClassName:       req.ClassName,
		Section:         req.Section,
		PasswordHash:    hash,
		Active:          activeOrDefault(req.Active),
	}
	if err := h.dir.UpsertStudent(c.Request.Context(), s); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// hashIfSet returns "" for an empty password so upserts keep the stored hash.
func hashIfSet(c *gin.Context, password string) (string, bool) {
	if password == "" {
		return "", true
	}
	hash, err := directory.HashPassword(password)
	if err != nil {
		writeError(c, err)
		return "", false
	}
	return hash, true
}

func activeOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
