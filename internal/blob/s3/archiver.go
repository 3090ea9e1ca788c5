package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// archiveLine is one JSONL row. Document holds the stored position JSON
// verbatim, or a JSON string when the stored bytes were not valid JSON.
type archiveLine struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Username     string          `json:"username,omitempty"`
	VaultAddress string          `json:"vaultAddress,omitempty"`
	ExitTxHash   string          `json:"exitTxHash,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Document     json.RawMessage `json:"document"`
}

// Archiver implements domain.Archiver by writing records as JSONL under
// archive/positions/YYYY/MM/DD/. When a reader is configured each upload is
// confirmed with a HEAD request before success is reported.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates an Archiver. reader and audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveRecords uploads recs as one object and returns its path. Large
// payloads go through the multipart uploader.
func (a *Archiver) ArchiveRecords(ctx context.Context, recs []domain.PositionRecord) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}
	buf, err := marshalRecords(recs)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	at := a.now()
	path := archivePath(at)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive positions verify: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("s3blob: archive positions verify %s: %w", path, domain.ErrNotFound)
		}
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.positions", map[string]any{
			"path":  path,
			"count": len(recs),
			"bytes": len(buf),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive positions audit log: %w", err)
		}
	}
	return path, nil
}

// ListDay returns the archive objects written on day (UTC).
func (a *Archiver) ListDay(ctx context.Context, day time.Time) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: list archives: no reader configured")
	}
	return a.reader.List(ctx, dayPrefix(day))
}

// Load reads an archive object back into records.
func (a *Archiver) Load(ctx context.Context, path string) ([]domain.PositionRecord, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: load archive: no reader configured")
	}
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var recs []domain.PositionRecord
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var line archiveLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("s3blob: load archive %s line %d: %w", path, len(recs)+1, err)
		}
		recs = append(recs, domain.PositionRecord{
			ID:           line.ID,
			Username:     line.Username,
			VaultAddress: line.VaultAddress,
			Status:       domain.PositionStatus(line.Status),
			ExitTxHash:   line.ExitTxHash,
			Document:     []byte(line.Document),
			UpdatedAt:    line.UpdatedAt,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: load archive %s: %w", path, err)
	}
	return recs, nil
}

func dayPrefix(t time.Time) string {
	return "archive/positions/" + t.UTC().Format("2006/01/02") + "/"
}

// archivePath is archive/positions/YYYY/MM/DD/<unixnano>.jsonl.
func archivePath(t time.Time) string {
	return fmt.Sprintf("%s%d.jsonl", dayPrefix(t), t.UnixNano())
}

func marshalRecords(recs []domain.PositionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, r := range recs {
		doc := json.RawMessage(r.Document)
		if !json.Valid(doc) {
			quoted, err := json.Marshal(string(r.Document))
			if err != nil {
				return nil, err
			}
			doc = quoted
		}
		if err := enc.Encode(archiveLine{
			ID:           r.ID,
			Status:       string(r.Status),
			Username:     r.Username,
			VaultAddress: r.VaultAddress,
			ExitTxHash:   r.ExitTxHash,
			UpdatedAt:    r.UpdatedAt,
			Document:     doc,
		}); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
