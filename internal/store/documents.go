package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DocumentMetadata describes one OneDrive file known to the knowledge base.
// ID is the drive item ID.
type DocumentMetadata struct {
	ID             string
	Title          string
	URL            string
	Path           string
	LastModifiedBy string
	LastModifiedAt *time.Time
	CreatedAt      time.Time
}

// DocumentDeletion counts the rows removed by DeleteDocuments.
type DocumentDeletion struct {
	Chunks   int
	Metadata int
}

// ListDocuments returns all document metadata, most recently modified
// first. Rows with no modification time sort last.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, COALESCE(url, ''), COALESCE(path, ''),
		COALESCE(last_modified_by, ''), last_modified_at, created_at
		FROM document_metadata
		ORDER BY last_modified_at IS NULL, last_modified_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentMetadata

	for rows.Next() {
		var (
			d        DocumentMetadata
			modified sql.NullTime
		)

		if err := rows.Scan(&d.ID, &d.Title, &d.URL, &d.Path, &d.LastModifiedBy, &modified, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning document: %w", err)
		}

		d.LastModifiedAt = nullTimePtr(modified)
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: listing documents: %w", err)
	}

	return docs, nil
}

// DocumentTitles returns the lower-cased titles of every known document.
func (s *Store) DocumentTitles(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM document_metadata`)
	if err != nil {
		return nil, fmt.Errorf("store: listing document titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]bool)

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("store: scanning document title: %w", err)
		}

		titles[strings.ToLower(t)] = true
	}

	return titles, rows.Err()
}

// UpsertDocumentMetadata records a document. The ingestion workflow is the
// usual writer; this is used by imports and tests.
func (s *Store) UpsertDocumentMetadata(ctx context.Context, d DocumentMetadata) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO document_metadata
		(id, title, url, path, last_modified_by, last_modified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			path = excluded.path,
			last_modified_by = excluded.last_modified_by,
			last_modified_at = excluded.last_modified_at`),
		d.ID, d.Title, d.URL, d.Path, d.LastModifiedBy, timePtrArg(d.LastModifiedAt), s.now())
	if err != nil {
		return fmt.Errorf("store: upserting document %s: %w", d.ID, err)
	}

	return nil
}

// InsertChunk adds one embedding chunk row whose metadata points at fileID.
func (s *Store) InsertChunk(ctx context.Context, fileID, content string) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO documents (content, metadata) VALUES (?, ?)`),
		content, fmt.Sprintf(`{"file_id":%q}`, fileID))
	if err != nil {
		return fmt.Errorf("store: inserting chunk for %s: %w", fileID, err)
	}

	return nil
}

// CountChunks returns the number of chunk rows for fileID.
func (s *Store) CountChunks(ctx context.Context, fileID string) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM documents WHERE metadata->>'file_id' = ?`),
		fileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting chunks for %s: %w", fileID, err)
	}

	return n, nil
}

// DeleteDocuments removes the chunks and metadata of fileIDs in a single
// transaction. Either both tables change or neither does.
func (s *Store) DeleteDocuments(ctx context.Context, fileIDs []string) (DocumentDeletion, error) {
	var out DocumentDeletion

	if len(fileIDs) == 0 {
		return out, nil
	}

	in := placeholders(len(fileIDs))
	args := stringArgs(fileIDs)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM documents WHERE metadata->>'file_id' IN (`+in+`)`), args...)
		if err != nil {
			return fmt.Errorf("store: deleting document chunks: %w", err)
		}

		chunks, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: deleting document chunks: %w", err)
		}

		res, err = tx.ExecContext(ctx, s.q(`DELETE FROM document_metadata WHERE id IN (`+in+`)`), args...)
		if err != nil {
			return fmt.Errorf("store: deleting document metadata: %w", err)
		}

		meta, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: deleting document metadata: %w", err)
		}

		out = DocumentDeletion{Chunks: int(chunks), Metadata: int(meta)}

		return nil
	})
	if err != nil {
		return DocumentDeletion{}, err
	}

	return out, nil
}
