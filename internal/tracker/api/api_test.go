package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryforge/quarry/internal/tracker/domain/event"
	"github.com/quarryforge/quarry/internal/tracker/engine"
	"github.com/quarryforge/quarry/internal/tracker/projection"
	"github.com/quarryforge/quarry/internal/tracker/storage"
)

var testBase = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

type memoryEventStore struct {
	events map[string][]event.Event
}

func (m *memoryEventStore) AppendEvents(_ context.Context, workItemID string, events []event.Event) ([]event.Event, error) {
	appended := make([]event.Event, len(events))
	for i, evt := range events {
		seq := uint64(len(m.events[workItemID]) + 1)
		evt.WorkItemID = workItemID
		evt.Seq = seq
		evt.ID = fmt.Sprintf("evt-%d", seq)
		if evt.Timestamp.IsZero() {
			evt.Timestamp = testBase.Add(time.Duration(seq) * time.Second)
		}
		m.events[workItemID] = append(m.events[workItemID], evt)
		appended[i] = evt
	}
	return appended, nil
}

func (m *memoryEventStore) ListEvents(_ context.Context, workItemID string, afterSeq uint64, limit int) ([]event.Event, error) {
	var out []event.Event
	for _, evt := range m.events[workItemID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryEventStore) LatestSeq(_ context.Context, workItemID string) (uint64, error) {
	return uint64(len(m.events[workItemID])), nil
}

type memoryWorkItemStore struct {
	records map[string]storage.WorkItemRecord
}

func (m *memoryWorkItemStore) Put(_ context.Context, record storage.WorkItemRecord) error {
	m.records[record.ID] = record
	return nil
}

func (m *memoryWorkItemStore) Get(_ context.Context, id string) (storage.WorkItemRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return storage.WorkItemRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (m *memoryWorkItemStore) List(_ context.Context, repositoryID string, limit int) ([]storage.WorkItemRecord, error) {
	var out []storage.WorkItemRecord
	for _, record := range m.records {
		if repositoryID != "" && record.RepositoryID != repositoryID {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	events := &memoryEventStore{events: make(map[string][]event.Event)}
	rows := &memoryWorkItemStore{records: make(map[string]storage.WorkItemRecord)}

	eng := engine.New(events, projection.NewApplier(rows), zerolog.Nop())
	eng.Now = func() time.Time { return testBase }

	e := echo.New()
	New(eng, rows, zerolog.Nop()).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createIssue(t *testing.T, e *echo.Echo, id string) {
	t.Helper()
	rec := doJSON(t, e, http.MethodPost, "/workitems/"+id+"/commands", `{
		"type": "issue.create",
		"actor_type": "user",
		"actor_id": "alice",
		"payload": {"title": "Bug", "repository_id": "repo-1", "local_id": 7}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDispatchCreateReturnsProjection(t *testing.T) {
	e := newTestServer(t)
	rec := doJSON(t, e, http.MethodPost, "/workitems/wi-1/commands", `{
		"type": "issue.create",
		"actor_type": "user",
		"actor_id": "alice",
		"payload": {"title": "Bug", "description": "crash on save", "repository_id": "repo-1", "local_id": 7}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wi-1", resp["id"])
	assert.Equal(t, "issue", resp["kind"])
	assert.Equal(t, "Bug", resp["title"])
	assert.Equal(t, "open", resp["lifecycle"])
}

func TestDispatchRejectionReturns422(t *testing.T) {
	e := newTestServer(t)
	createIssue(t, e, "wi-1")

	rec := doJSON(t, e, http.MethodPost, "/workitems/wi-1/commands", `{
		"type": "issue.create",
		"actor_type": "user",
		"actor_id": "alice",
		"payload": {"title": "Bug again"}
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_FAILURE", resp.Code)
	assert.Equal(t, "WORKITEM_ALREADY_EXISTS", resp.Reason)
	assert.NotEmpty(t, resp.Message)
}

func TestDispatchRequiresCommandType(t *testing.T) {
	e := newTestServer(t)
	rec := doJSON(t, e, http.MethodPost, "/workitems/wi-1/commands", `{"actor_type": "user"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkItem(t *testing.T) {
	e := newTestServer(t)
	createIssue(t, e, "wi-1")

	rec := doJSON(t, e, http.MethodGet, "/workitems/wi-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bug", resp["title"])
	assert.Equal(t, "repo-1", resp["repository_id"])

	rec = doJSON(t, e, http.MethodGet, "/workitems/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectionHidesModeratedAndDeletedContent(t *testing.T) {
	e := newTestServer(t)
	createIssue(t, e, "wi-1")

	for i, body := range []string{
		`{"type":"comment.create","actor_type":"user","actor_id":"bob","payload":{"comment_id":"c1","text":"visible"}}`,
		`{"type":"comment.create","actor_type":"user","actor_id":"bob","payload":{"comment_id":"c2","text":"secret"}}`,
		`{"type":"comment.create","actor_type":"user","actor_id":"bob","payload":{"comment_id":"c3","text":"gone"}}`,
		`{"type":"comment.hide","actor_type":"system","payload":{"comment_id":"c2","reason":"spam"}}`,
		`{"type":"comment.delete","actor_type":"user","actor_id":"bob","payload":{"comment_id":"c3"}}`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/workitems/wi-1/commands", body)
		require.Equal(t, http.StatusOK, rec.Code, "command %d: %s", i, rec.Body.String())
	}

	rec := doJSON(t, e, http.MethodGet, "/workitems/wi-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Comments []commentResponse `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Comments, 2)
	assert.Equal(t, "c1", resp.Comments[0].ID)
	assert.Equal(t, "visible", resp.Comments[0].Text)
	assert.Equal(t, "c2", resp.Comments[1].ID)
	assert.Empty(t, resp.Comments[1].Text, "hidden comments must not leak text")
	assert.Equal(t, "hidden", resp.Comments[1].State)
}

func TestListWorkItems(t *testing.T) {
	e := newTestServer(t)
	createIssue(t, e, "wi-1")

	rec := doJSON(t, e, http.MethodGet, "/workitems?repository_id=repo-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []recordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "wi-1", resp[0].ID)
	assert.Equal(t, "Bug", resp[0].Title)

	rec = doJSON(t, e, http.MethodGet, "/workitems?repository_id=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp)
}

func TestGetHistory(t *testing.T) {
	e := newTestServer(t)
	createIssue(t, e, "wi-1")
	rec := doJSON(t, e, http.MethodPost, "/workitems/wi-1/commands",
		`{"type":"issue.close","actor_type":"user","actor_id":"alice","payload":{"reason":"fixed"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodGet, "/workitems/wi-1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "issue.created", events[0].Type)
	assert.Equal(t, "issue.closed", events[1].Type)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)

	rec = doJSON(t, e, http.MethodGet, "/workitems/missing/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
