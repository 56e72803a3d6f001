package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

// ---------- Redemption ----------

type scanRequest struct {
	Token string `json:"token" binding:"required"`
}

// ScanClass marks the calling student for the scanned class session.
// A repeat scan answers 200 with already_marked set.
func (h *Handler) ScanClass(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.RedeemClassToken(c.Request.Context(), req.Token, claims.Institution, claims.Subject, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyMarked {
		status = http.StatusOK
	}
	c.JSON(status, resultBody(res))
}

// ScanTeacherSelf checks the calling teacher in, or out on the second scan.
func (h *Handler) ScanTeacherSelf(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.RedeemTeacherSelfToken(c.Request.Context(), req.Token, claims.Institution, claims.Subject, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Action == attendance.ActionCheckOut {
		status = http.StatusOK
	}
	c.JSON(status, resultBody(res))
}

func resultBody(res attendance.Result) gin.H {
	body := gin.H{
		"kind":           res.Kind,
		"already_marked": res.AlreadyMarked,
		"record":         res.Record,
	}
	switch {
	case res.AlreadyMarked:
		body["message"] = "attendance already marked"
	case res.Action == attendance.ActionCheckIn:
		body["action"] = res.Action
		body["message"] = "checked in"
	case res.Action == attendance.ActionCheckOut:
		body["action"] = res.Action
		body["message"] = "checked out"
	default:
		body["message"] = "attendance marked " + res.Record.Status
	}
	return body
}
