package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// childrenPageSize is the largest $top Graph accepts for children.
const childrenPageSize = 200

// childrenSelect limits listing payloads to what folder enumeration reads.
const childrenSelect = "id,name,folder,package,parentReference"

// Timestamps outside these years are treated as corrupt.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// itemJSON is the subset of a Graph driveItem that ragdesk reads.
type itemJSON struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Size                 int64           `json:"size"`
	ETag                 string          `json:"eTag"`
	WebURL               string          `json:"webUrl"`
	CreatedDateTime      string          `json:"createdDateTime"`
	LastModifiedDateTime string          `json:"lastModifiedDateTime"`
	Package              json.RawMessage `json:"package"`
	Folder               *struct{}       `json:"folder"`

	LastModifiedBy struct {
		User struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"lastModifiedBy"`

	ParentReference struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	} `json:"parentReference"`

	File *struct {
		MimeType string `json:"mimeType"`
		Hashes   struct {
			QuickXorHash string `json:"quickXorHash"`
		} `json:"hashes"`
	} `json:"file"`
}

type childrenPage struct {
	Value    []itemJSON `json:"value"`
	NextLink string     `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toItem flattens the JSON shape. Fields missing under $select stay zero.
func (j *itemJSON) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:         j.ID,
		Name:       j.Name,
		Size:       j.Size,
		ETag:       j.ETag,
		WebURL:     j.WebURL,
		IsFolder:   j.Folder != nil,
		IsPackage:  len(j.Package) > 0 && string(j.Package) != "null",
		ParentID:   j.ParentReference.ID,
		ParentPath: j.ParentReference.Path,
		ModifiedBy: j.LastModifiedBy.User.DisplayName,
		CreatedAt:  itemTime(logger, j.ID, "createdDateTime", j.CreatedDateTime),
		ModifiedAt: itemTime(logger, j.ID, "lastModifiedDateTime", j.LastModifiedDateTime),
	}

	if j.File != nil {
		item.MimeType = j.File.MimeType
		item.QuickXorHash = j.File.Hashes.QuickXorHash
	}

	return item
}

// itemTime parses an RFC3339 field. Empty stays zero; unparseable or
// implausible values become now, with a warning.
func itemTime(logger *slog.Logger, itemID, field, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err == nil && t.Year() >= minValidYear && t.Year() <= maxValidYear {
		return t
	}

	logger.Warn("bad item timestamp, using current time",
		slog.String("item_id", itemID),
		slog.String("field", field),
		slog.String("raw", raw),
	)

	return time.Now().UTC()
}

// getJSON GETs path and decodes the body into dst. what names the
// resource in decode errors.
func (c *Client) getJSON(ctx context.Context, path, what string, dst any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("graph: decoding %s: %w", what, err)
	}

	return nil
}

// ListChildren returns every child of folderID, following @odata.nextLink.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	next := fmt.Sprintf("/me/drive/items/%s/children?$select=%s&$top=%d",
		url.PathEscape(folderID), childrenSelect, childrenPageSize)

	var (
		items []Item
		pages int
	)

	for next != "" {
		var page childrenPage
		if err := c.getJSON(ctx, next, "children", &page); err != nil {
			return nil, err
		}

		pages++

		for i := range page.Value {
			items = append(items, page.Value[i].toItem(c.logger))
		}

		next = ""
		if page.NextLink != "" {
			rel, ok := strings.CutPrefix(page.NextLink, c.baseURL)
			if !ok {
				return nil, fmt.Errorf("graph: nextLink URL %q does not match base URL %q", page.NextLink, c.baseURL)
			}

			next = rel
		}
	}

	c.logger.Debug("listed children",
		slog.String("folder_id", folderID),
		slog.Int("pages", pages),
		slog.Int("items", len(items)),
	)

	return items, nil
}

// ItemByPath returns the item at a drive-root-relative path such as
// "rag-chatbot" or "rag-chatbot/policies". A missing path wraps ErrNotFound.
func (c *Client) ItemByPath(ctx context.Context, itemPath string) (*Item, error) {
	trimmed := strings.Trim(itemPath, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("graph: empty item path")
	}

	segments := strings.Split(trimmed, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	var j itemJSON
	if err := c.getJSON(ctx, "/me/drive/root:/"+strings.Join(segments, "/"), "item", &j); err != nil {
		return nil, err
	}

	item := j.toItem(c.logger)

	return &item, nil
}
