package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/dto"
)

// ServiceFileStoring names the storing service in errors and metrics.
const ServiceFileStoring = "file-storing"

// UploadFile is a work forwarded by the gateway.
type UploadFile struct {
	StudentID    uint
	AssignmentID uint
	FileName     string
	ContentType  string
	Content      io.Reader
}

// StoringClient talks to the FileStoringService.
type StoringClient struct {
	baseClient
}

// NewStoringClient constructs a storing service client.
func NewStoringClient(cfg Config) *StoringClient {
	return &StoringClient{baseClient: newBaseClient(ServiceFileStoring, cfg)}
}

// GetWork returns the metadata of one work.
func (c *StoringClient) GetWork(ctx context.Context, workID uint) (dto.WorkMeta, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/files/%d/meta", workID), nil)
	if err != nil {
		return dto.WorkMeta{}, err
	}

	var meta dto.WorkMeta
	if _, err := c.doJSON(req, &meta); err != nil {
		return dto.WorkMeta{}, err
	}
	return meta, nil
}

// ListByAssignment returns every work of an assignment ordered by submission time.
func (c *StoringClient) ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.WorkMeta, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/assignments/%d/files", assignmentID), nil)
	if err != nil {
		return nil, err
	}

	var works []dto.WorkMeta
	if _, err := c.doJSON(req, &works); err != nil {
		return nil, err
	}
	return works, nil
}

// Download opens the stored file of a work. rangeHeader is forwarded verbatim when set.
// The caller owns the returned body.
func (c *StoringClient) Download(ctx context.Context, workID uint, rangeHeader string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, dto.DownloadPath(workID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.statusError(resp)
	}
	return resp, nil
}

// DownloadContent reads at most limit bytes of the stored file of a work.
func (c *StoringClient) DownloadContent(ctx context.Context, workID uint, limit int64) ([]byte, error) {
	resp, err := c.Download(ctx, workID, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("read work %d: %w", workID, err))
	}
	return content, nil
}

// Upload stores a work through the multipart endpoint.
func (c *StoringClient) Upload(ctx context.Context, file UploadFile) (dto.WorkMeta, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("studentId", strconv.FormatUint(uint64(file.StudentID), 10)); err != nil {
		return dto.WorkMeta{}, err
	}
	if err := writer.WriteField("assignmentId", strconv.FormatUint(uint64(file.AssignmentID), 10)); err != nil {
		return dto.WorkMeta{}, err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", formFileDisposition("file", file.FileName))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return dto.WorkMeta{}, err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return dto.WorkMeta{}, fmt.Errorf("buffer upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return dto.WorkMeta{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", body)
	if err != nil {
		return dto.WorkMeta{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var meta dto.WorkMeta
	if _, err := c.doJSON(req, &meta); err != nil {
		return dto.WorkMeta{}, err
	}
	return meta, nil
}

// formFileDisposition names a multipart file part. Non-ASCII file names are encoded as
// RFC 2231 extended parameters.
func formFileDisposition(field, fileName string) string {
	return mime.FormatMediaType("form-data", map[string]string{"name": field, "filename": fileName})
}

// Health checks that the storing service answers.
func (c *StoringClient) Health(ctx context.Context) error {
	return c.health(ctx)
}
