package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/database"
	"github.com/noah-isme/gema-antiplagiat/internal/dto"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
	"github.com/noah-isme/gema-antiplagiat/internal/queue"
)

const textContentType = "text/plain; charset=utf-8"

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}, &models.Report{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["file"][0]
}

type workSourceStub struct {
	mu          sync.Mutex
	works       map[uint]dto.WorkMeta
	contents    map[uint]string
	getErr      error
	listErr     error
	downloadErr error
	block       chan struct{}
	getCalls    int
}

func newWorkSourceStub(works ...dto.WorkMeta) *workSourceStub {
	stub := &workSourceStub{works: map[uint]dto.WorkMeta{}, contents: map[uint]string{}}
	for _, work := range works {
		stub.works[work.WorkID] = work
	}
	return stub
}

func (s *workSourceStub) GetWork(ctx context.Context, workID uint) (dto.WorkMeta, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return dto.WorkMeta{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return dto.WorkMeta{}, s.getErr
	}
	work, ok := s.works[workID]
	if !ok {
		return dto.WorkMeta{}, apperr.New(apperr.ErrNotFound, "work %d", workID)
	}
	return work, nil
}

func (s *workSourceStub) ListByAssignment(_ context.Context, assignmentID uint) ([]dto.WorkMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var works []dto.WorkMeta
	for _, work := range s.works {
		if work.AssignmentID == assignmentID {
			works = append(works, work)
		}
	}
	return works, nil
}

func (s *workSourceStub) DownloadContent(_ context.Context, workID uint, _ int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	content, ok := s.contents[workID]
	if !ok {
		return nil, apperr.New(apperr.ErrGone, "work %d content", workID)
	}
	return []byte(content), nil
}

func (s *workSourceStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *captureQueue) Start(queue.Handler) error { return nil }

func (q *captureQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) Stop(context.Context) error { return nil }

func (q *captureQueue) last(t *testing.T) queue.Job {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.jobs)
	return q.jobs[len(q.jobs)-1]
}

type wordCloudStub struct {
	url string
	err error
}

func (w wordCloudStub) Generate(_ context.Context, text string) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	return w.url, nil
}

type checkerFunc func(ctx context.Context, input CheckInput) (CheckResult, error)

func (f checkerFunc) Check(ctx context.Context, input CheckInput) (CheckResult, error) {
	return f(ctx, input)
}
