package deposit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/openfolio/archive-api/internal/models"
	"github.com/openfolio/archive-api/internal/schema"
	appErrors "github.com/openfolio/archive-api/pkg/errors"
)

// Payload is one media binary attached to a submission. Key is the
// stable per-asset multipart field name (the media ID).
type Payload struct {
	Key      string
	Filename string
	MimeType string
	Data     io.Reader
}

// Receipt is the archive service's acknowledgement of a submission.
type Receipt struct {
	PID string
	URI string
}

// RemoteValidationError carries field errors the archive service
// returned in its rejection body. The translator maps the tree back
// onto domain paths before it reaches a caller.
type RemoteValidationError struct {
	Tree *schema.ErrorTree
}

func (e *RemoteValidationError) Error() string {
	return fmt.Sprintf("archive service rejected submission with %d field errors", e.Tree.Len())
}

// Config holds the archive service connection settings.
type Config struct {
	BaseURL  string
	BaseURI  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client performs submissions against the archive service. It is
// stateless per call and never retries; retry policy belongs to the
// scheduler.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient constructs the client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Submit encodes the document and payloads as a multipart form and
// posts it to the endpoint category derived from the payload set.
// Transport failures classify as transient; application rejections as
// permanent unless the body carries mappable field errors.
func (c *Client) Submit(ctx context.Context, doc schema.Document, payloads []Payload) (*Receipt, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	metadata, err := json.Marshal(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode metadata document")
	}
	if err := writer.WriteField("metadata", string(metadata)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "write metadata field")
	}

	for _, p := range payloads {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Key, p.Filename))
		header.Set("Content-Type", p.MimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create payload part")
		}
		if _, err := io.Copy(part, p.Data); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "copy payload bytes")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "finalize multipart body")
	}

	endpoint := fmt.Sprintf("%s/object/create/%s", strings.TrimRight(c.cfg.BaseURL, "/"), Category(payloads))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build submission request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	// Correlation ID ties our logs to the archive service's when a
	// submission needs to be traced across both systems.
	correlationID := uuid.NewString()
	req.Header.Set("X-Correlation-ID", correlationID)
	c.logger.Sugar().Debugw("submitting to archive service", "endpoint", endpoint, "correlation_id", correlationID)

	resp, err := c.http.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: the service may
		// recover, so the scheduler is allowed to retry.
		return nil, appErrors.Wrap(err, appErrors.ErrTransientExternal.Code, appErrors.ErrTransientExternal.Status, appErrors.ErrTransientExternal.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransientExternal.Code, appErrors.ErrTransientExternal.Status, "read archive service response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyRejection(resp.StatusCode, raw)
	}

	var ack struct {
		PID string `json:"pid"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil || ack.PID == "" {
		c.logger.Sugar().Errorw("archive service returned 200 without a parseable pid", "body", string(raw))
		return nil, appErrors.Clone(appErrors.ErrPermanentExternal, "unexpected response from archive service")
	}

	return &Receipt{PID: ack.PID, URI: c.cfg.BaseURI + ack.PID}, nil
}

// classifyRejection inspects a non-200 body. Bodies carrying a field
// error object become RemoteValidationError so the translator can map
// them back; everything else is conservatively permanent and the raw
// body is logged for later reclassification.
func (c *Client) classifyRejection(status int, raw []byte) error {
	var rejection struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &rejection); err == nil && len(rejection.Errors) > 0 {
		tree := schema.NewErrorTree()
		for path, messages := range rejection.Errors {
			for _, msg := range messages {
				tree.Add(path, msg)
			}
		}
		return &RemoteValidationError{Tree: tree}
	}

	c.logger.Sugar().Errorw("archive service rejected submission", "status", status, "body", string(raw))
	return appErrors.Clone(appErrors.ErrPermanentExternal,
		fmt.Sprintf("archive service rejected the submission with status %d", status))
}

// Category maps a payload set to the archive service's endpoint
// category. A lone asset routes by its MIME family; mixed submissions
// go to the container endpoint.
func Category(payloads []Payload) string {
	if len(payloads) != 1 {
		return "container"
	}
	mime := payloads[0].MimeType
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "picture"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case mime == "application/pdf":
		return "document"
	default:
		return "unknown"
	}
}

// ClassOf derives the persisted retry classification from a
// submission error.
func ClassOf(err error) models.ErrorClass {
	if errors.Is(err, appErrors.ErrTransientExternal) {
		return models.ErrorClassTransient
	}
	return models.ErrorClassPermanent
}
