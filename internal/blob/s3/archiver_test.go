package s3blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
	"github.com/purvik6062/trading-ai-agent-sub001/internal/store/memory"
)

// memBlob is an in-memory BlobWriter and BlobReader.
type memBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	multipart int
	dropPuts  bool
}

func newMemBlob() *memBlob { return &memBlob{objects: make(map[string][]byte)} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dropPuts {
		m.objects[path] = b
	}
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.mu.Lock()
	m.multipart++
	m.mu.Unlock()
	return m.Put(ctx, path, data, "")
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func records() []domain.PositionRecord {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	return []domain.PositionRecord{
		{ID: "p1", Status: domain.PositionStatusClosed, Username: "alice", Document: []byte(`{"id":"p1","status":"closed"}`), UpdatedAt: at},
		{ID: "p2", Status: domain.PositionStatusFailed, Document: []byte(`not json`), UpdatedAt: at},
	}
}

func TestArchiverRoundTrip(t *testing.T) {
	blob := newMemBlob()
	audit := memory.NewAuditStore()
	a := NewArchiver(blob, blob, audit)
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	path, err := a.ArchiveRecords(ctx, records())
	require.NoError(t, err)
	assert.Equal(t, "archive/positions/2026/03/14/"+"1773500966000000000.jsonl", path)

	infos, err := a.ListDay(ctx, now)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, path, infos[0].Path)

	got, err := a.Load(ctx, path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "alice", got[0].Username)
	assert.JSONEq(t, `{"id":"p1","status":"closed"}`, string(got[0].Document))
	assert.Equal(t, `"not json"`, string(got[1].Document))
	assert.Equal(t, domain.PositionStatusFailed, got[1].Status)

	assert.Equal(t, []string{"archive.positions"}, audit.Events())
}

func TestArchiverEmptyIsNoop(t *testing.T) {
	blob := newMemBlob()
	path, err := NewArchiver(blob, blob, nil).ArchiveRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, blob.objects)
}

func TestArchiverVerifiesUpload(t *testing.T) {
	blob := newMemBlob()
	blob.dropPuts = true
	_, err := NewArchiver(blob, blob, nil).ArchiveRecords(context.Background(), records())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiverLargePayloadUsesMultipart(t *testing.T) {
	blob := newMemBlob()
	big := bytes.Repeat([]byte("x"), int(minPartSize))
	recs := []domain.PositionRecord{{ID: "p", Status: domain.PositionStatusClosed, Document: []byte(`"` + string(big) + `"`)}}

	_, err := NewArchiver(blob, blob, nil).ArchiveRecords(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 1, blob.multipart)
}
