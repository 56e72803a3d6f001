package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

// ---------- Session tokens (teacher) ----------

const qrSize = 300

type classSessionRequest struct {
	Subject   string `json:"subject" binding:"required"`
	ClassName string `json:"class_name" binding:"required"`
	Section   string `json:"section"`
	Period    int    `json:"period" binding:"gte=0"`
}

type issuedResponse struct {
	attendance.Issued
	QRCode string `json:"qr_code"`
}

// IssueClassSession returns a class_session token and its QR rendering.
func (h *Handler) IssueClassSession(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req classSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	issued, err := h.svc.IssueClassToken(c.Request.Context(), attendance.IssueClassRequest{
		IssuerID:        claims.Subject,
		InstitutionCode: claims.Institution,
		Subject:         req.Subject,
		ClassName:       req.ClassName,
		Section:         req.Section,
		Period:          req.Period,
	}, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	h.writeIssued(c, issued)
}

// IssueTeacherSelf returns the caller's own check-in/out token.
func (h *Handler) IssueTeacherSelf(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	issued, err := h.svc.IssueTeacherSelfToken(c.Request.Context(), claims.Subject, claims.Institution, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	h.writeIssued(c, issued)
}

func (h *Handler) writeIssued(c *gin.Context, issued attendance.Issued) {
	png, err := qrcode.Encode(issued.Token, qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "png" {
		c.Header("X-Session-Id", issued.SessionID)
		c.Data(http.StatusCreated, "image/png", png)
		return
	}
	c.JSON(http.StatusCreated, issuedResponse{
		Issued: issued,
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}
