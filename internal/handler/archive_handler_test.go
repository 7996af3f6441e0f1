package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/archive-api/internal/dto"
	"github.com/openfolio/archive-api/internal/middleware"
	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
)

type archiveServiceMock struct {
	validateTree *schema.ErrorTree
	validateErr  error
	accepted     *dto.ArchiveAcceptedResponse
	requestTree  *schema.ErrorTree
	requestErr   error
	status       *dto.EntryStatusResponse
	statusErr    error
	retryErr     error
}

func (m *archiveServiceMock) Validate(_ context.Context, _ string, _ *models.JWTClaims) (*schema.ErrorTree, error) {
	return m.validateTree, m.validateErr
}

func (m *archiveServiceMock) RequestArchive(_ context.Context, _ string, _ []string, _ *models.JWTClaims) (*dto.ArchiveAcceptedResponse, *schema.ErrorTree, error) {
	return m.accepted, m.requestTree, m.requestErr
}

func (m *archiveServiceMock) EntryStatus(_ context.Context, _ string, _ *models.JWTClaims) (*dto.EntryStatusResponse, error) {
	return m.status, m.statusErr
}

func (m *archiveServiceMock) Retry(_ context.Context, _ string, _ *models.JWTClaims) error {
	return m.retryErr
}

type receiptServiceMock struct {
	token    string
	tokenErr error
	file     *os.File
	openErr  error
}

func (m *receiptServiceMock) SignedToken(_ string) (string, time.Time, error) {
	return m.token, time.Now().Add(time.Hour), m.tokenErr
}

func (m *receiptServiceMock) OpenSigned(_ string) (*os.File, error) {
	return m.file, m.openErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func authed(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleOwner})
}

func TestArchiveHandlerValidateOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewArchiveHandler(&archiveServiceMock{validateTree: schema.NewErrorTree()}, &receiptServiceMock{})

	c, w := newGinContext(http.MethodPost, "/entries/entry-1/archive/validate", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}
	authed(c)

	handler.Validate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)
}

func TestArchiveHandlerValidateReportsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tree := schema.NewErrorTree()
	tree.Add("title", "title is required")
	handler := NewArchiveHandler(&archiveServiceMock{validateTree: tree}, &receiptServiceMock{})

	c, w := newGinContext(http.MethodPost, "/entries/entry-1/archive/validate", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}
	authed(c)

	handler.Validate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
	assert.Contains(t, w.Body.String(), "title is required")
}

func TestArchiveHandlerRequestArchiveAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewArchiveHandler(&archiveServiceMock{
		accepted: &dto.ArchiveAcceptedResponse{EntryID: "entry-1", Queued: []string{"m1"}},
	}, &receiptServiceMock{})

	payload, _ := json.Marshal(dto.ArchiveRequest{MediaIDs: []string{"m1"}})
	c, w := newGinContext(http.MethodPost, "/entries/entry-1/archive", payload)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}
	authed(c)

	handler.RequestArchive(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"queued":["m1"]`)
}

func TestArchiveHandlerRequestArchiveValidationFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tree := schema.NewErrorTree()
	tree.Add("contributors.supervisor", "a thesis entry requires a contributor holding the supervisor role")
	handler := NewArchiveHandler(&archiveServiceMock{requestTree: tree}, &receiptServiceMock{})

	c, w := newGinContext(http.MethodPost, "/entries/entry-1/archive", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}
	authed(c)

	handler.RequestArchive(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "contributors.supervisor")
}

func TestArchiveHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewArchiveHandler(&archiveServiceMock{}, &receiptServiceMock{})

	c, w := newGinContext(http.MethodGet, "/entries/entry-1/archive/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}

	handler.Status(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestArchiveHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewArchiveHandler(&archiveServiceMock{
		status: &dto.EntryStatusResponse{EntryID: "entry-1", Status: models.ArchiveStatusArchived},
	}, &receiptServiceMock{})

	c, w := newGinContext(http.MethodGet, "/entries/entry-1/archive/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}
	authed(c)

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ARCHIVED")
}

func TestArchiveHandlerRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewArchiveHandler(&archiveServiceMock{}, &receiptServiceMock{})

	c, w := newGinContext(http.MethodPost, "/media/m1/archive/retry", nil)
	c.Params = gin.Params{{Key: "id", Value: "m1"}}
	authed(c)

	handler.Retry(c)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestArchiveHandlerReceiptToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewArchiveHandler(&archiveServiceMock{
		status: &dto.EntryStatusResponse{EntryID: "entry-1", Status: models.ArchiveStatusArchived},
	}, &receiptServiceMock{token: "tok.123"})

	c, w := newGinContext(http.MethodGet, "/entries/entry-1/archive/receipt", nil)
	c.Params = gin.Params{{Key: "id", Value: "entry-1"}}
	authed(c)

	handler.Receipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tok.123")
}

func TestArchiveHandlerDownloadReceiptRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewArchiveHandler(&archiveServiceMock{}, &receiptServiceMock{})

	c, w := newGinContext(http.MethodGet, "/receipts/download", nil)

	handler.DownloadReceipt(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
