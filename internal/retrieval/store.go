package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore provides vector storage and brute-force cosine similarity search
// backed by SQLite. The chunk_records table must already exist (created via
// storage migrations).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const recordColumns = `id, document_key, sequence_index, source_path, text_chunk, embedding, modified_at, indexed_at`

// where compiles a predicate to a SQL condition and its argument.
func where(p Predicate) (string, any, error) {
	switch p.field {
	case fieldDocumentKey:
		return "document_key = ?", p.value, nil
	case fieldSourcePath:
		return "source_path = ?", p.value, nil
	}
	return "", nil, fmt.Errorf("invalid predicate")
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get returns records matching p.
func (s *SQLiteStore) Get(ctx context.Context, p Predicate) ([]Record, error) {
	cond, arg, err := where(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM chunk_records WHERE `+cond+` ORDER BY source_path, sequence_index`, arg)
	if err != nil {
		return nil, fmt.Errorf("querying records (%s): %w", p, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Delete removes records matching p.
func (s *SQLiteStore) Delete(ctx context.Context, p Predicate) (int, error) {
	cond, arg, err := where(p)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunk_records WHERE `+cond, arg)
	if err != nil {
		return 0, fmt.Errorf("deleting records (%s): %w", p, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Insert adds records inside a single transaction, batchSize rows per statement.
func (s *SQLiteStore) Insert(ctx context.Context, records []Record, batchSize int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	if err := insertBatches(ctx, tx, records, batchSize); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Replace swaps a document's records in one transaction: a crash or error
// at any point leaves the previous records in place.
func (s *SQLiteStore) Replace(ctx context.Context, documentKey string, records []Record, batchSize int) error {
	for _, r := range records {
		if r.DocumentKey != documentKey {
			return fmt.Errorf("record %s belongs to document %s, not %s", r.ID, r.DocumentKey, documentKey)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_records WHERE document_key = ?`, documentKey); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting records of %s: %w", documentKey, err)
	}
	if err := insertBatches(ctx, tx, records, batchSize); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace of %s: %w", documentKey, err)
	}
	return nil
}

// insertBatches writes records with one multi-row INSERT per batch.
func insertBatches(ctx context.Context, ex execer, records []Record, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(records)
	}
	now := time.Now().UTC()
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		args := make([]any, 0, len(batch)*8)
		for _, r := range batch {
			indexedAt := r.IndexedAt
			if indexedAt.IsZero() {
				indexedAt = now
			}
			args = append(args,
				r.ID, r.DocumentKey, r.SequenceIndex, r.SourcePath, r.Text,
				encodeFloat32s(r.Embedding), r.ModifiedTime.UnixNano(), indexedAt.Format(time.RFC3339),
			)
		}
		query := `INSERT INTO chunk_records (` + recordColumns + `) VALUES ` +
			strings.TrimSuffix(strings.Repeat("(?, ?, ?, ?, ?, ?, ?, ?),", len(batch)), ",")
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting batch starting at %s: %w", batch[0].ID, err)
		}
	}
	return nil
}

// idScore holds only the ID and score during the scan phase of Search.
// Full record details are fetched only for top-K winners.
type idScore struct {
	ID    string
	Score float32
}

// Search performs brute-force cosine similarity search over all vectors,
// returning the top-K most similar records sorted by score descending.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only id + embedding to find top-K candidates.
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunk_records`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		score := dotProduct(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	rows.Close()

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full records for the winners.
	scores := make(map[string]float32, h.Len())
	args := make([]any, 0, h.Len())
	for _, c := range *h {
		scores[c.ID] = c.Score
		args = append(args, c.ID)
	}
	fullRows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM chunk_records WHERE id IN (?`+strings.Repeat(",?", len(args)-1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching top records: %w", err)
	}
	defer fullRows.Close()

	records, err := scanRecords(fullRows)
	if err != nil {
		return nil, err
	}
	results := make([]ScoredRecord, len(records))
	for i, r := range records {
		results[i] = ScoredRecord{Record: r, Score: scores[r.ID]}
	}

	// IN query doesn't preserve order; ties fall back to ID for determinism.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Reset removes every record.
func (s *SQLiteStore) Reset(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunk_records`)
	if err != nil {
		return 0, fmt.Errorf("clearing records: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_records`).Scan(&count)
	return count, err
}

// Documents returns one summary per source path, ordered by path.
func (s *SQLiteStore) Documents(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_path, document_key, COUNT(*), MAX(modified_at)
		FROM chunk_records GROUP BY source_path, document_key ORDER BY source_path`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentSummary
	for rows.Next() {
		var d DocumentSummary
		var modified int64
		if err := rows.Scan(&d.SourcePath, &d.DocumentKey, &d.Chunks, &modified); err != nil {
			return nil, err
		}
		d.ModifiedTime = time.Unix(0, modified)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var blob []byte
		var modified int64
		var indexedAt string
		if err := rows.Scan(&r.ID, &r.DocumentKey, &r.SequenceIndex, &r.SourcePath, &r.Text, &blob, &modified, &indexedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		r.Embedding = embedding
		r.ModifiedTime = time.Unix(0, modified)
		t, err := time.Parse(time.RFC3339, indexedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing indexed_at for id %s: %w", r.ID, err)
		}
		r.IndexedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	return decodeFloat32sInto(nil, b)
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// dotProduct computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func dotProduct(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
