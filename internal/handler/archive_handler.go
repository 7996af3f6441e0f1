package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/openfolio/archive-api/internal/dto"
	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
	appErrors "github.com/openfolio/archive-api/pkg/errors"
	"github.com/openfolio/archive-api/pkg/response"
)

type archiveService interface {
	Validate(ctx context.Context, entryID string, actor *models.JWTClaims) (*schema.ErrorTree, error)
	RequestArchive(ctx context.Context, entryID string, mediaIDs []string, actor *models.JWTClaims) (*dto.ArchiveAcceptedResponse, *schema.ErrorTree, error)
	EntryStatus(ctx context.Context, entryID string, actor *models.JWTClaims) (*dto.EntryStatusResponse, error)
	Retry(ctx context.Context, mediaID string, actor *models.JWTClaims) error
}

type receiptService interface {
	SignedToken(entryID string) (string, time.Time, error)
	OpenSigned(token string) (*os.File, error)
}

// ArchiveHandler exposes the archival pipeline over HTTP.
type ArchiveHandler struct {
	service  archiveService
	receipts receiptService
	validate *validator.Validate
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(service archiveService, receipts receiptService) *ArchiveHandler {
	return &ArchiveHandler{
		service:  service,
		receipts: receipts,
		validate: validator.New(),
	}
}

// Validate godoc
// @Summary Dry-run validation of an entry against the archive schema
// @Tags Archival
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope{data=dto.ValidationResponse}
// @Router /entries/{id}/archive/validate [post]
func (h *ArchiveHandler) Validate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	tree, err := h.service.Validate(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := dto.ValidationResponse{Valid: tree.Empty()}
	if !tree.Empty() {
		resp.Errors = tree
	}
	response.JSON(c, http.StatusOK, resp)
}

// RequestArchive godoc
// @Summary Queue archival of an entry's media
// @Tags Archival
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param request body dto.ArchiveRequest false "Media selection"
// @Success 202 {object} response.Envelope{data=dto.ArchiveAcceptedResponse}
// @Failure 400 {object} response.Envelope{data=dto.ValidationResponse}
// @Router /entries/{id}/archive [post]
func (h *ArchiveHandler) RequestArchive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ArchiveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid archive request payload"))
			return
		}
		if err := h.validate.Struct(req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "media ids must be non-empty strings"))
			return
		}
	}

	resp, tree, err := h.service.RequestArchive(c.Request.Context(), c.Param("id"), req.MediaIDs, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if tree != nil {
		response.JSON(c, http.StatusBadRequest, dto.ValidationResponse{Valid: false, Errors: tree})
		return
	}
	response.Accepted(c, resp)
}

// Status godoc
// @Summary Archival status of an entry and its media
// @Tags Archival
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope{data=dto.EntryStatusResponse}
// @Router /entries/{id}/archive/status [get]
func (h *ArchiveHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resp, err := h.service.EntryStatus(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Retry godoc
// @Summary Re-queue an errored media asset
// @Tags Archival
// @Produce json
// @Param id path string true "Media ID"
// @Success 202 {object} response.Envelope
// @Router /media/{id}/archive/retry [post]
func (h *ArchiveHandler) Retry(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Retry(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"mediaId": c.Param("id")})
}

// Receipt godoc
// @Summary Signed download link for an entry's archival receipt
// @Tags Archival
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /entries/{id}/archive/receipt [get]
func (h *ArchiveHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entryID := c.Param("id")
	// Ownership is enforced by the status lookup.
	if _, err := h.service.EntryStatus(c.Request.Context(), entryID, claims); err != nil {
		response.Error(c, err)
		return
	}
	token, expires, err := h.receipts.SignedToken(entryID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expires.UTC(),
	})
}

// DownloadReceipt godoc
// @Summary Download a receipt PDF via signed token
// @Tags Archival
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /receipts/download [get]
func (h *ArchiveHandler) DownloadReceipt(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.receipts.OpenSigned(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat receipt"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}
