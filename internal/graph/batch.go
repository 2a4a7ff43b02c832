package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// batchRequestLimit is the Graph JSON batching ceiling per $batch call.
const batchRequestLimit = 20

type batchRequest struct {
	Requests []batchSubRequest `json:"requests"`
}

type batchSubRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type batchResponse struct {
	Responses []batchSubResponse `json:"responses"`
}

type batchSubResponse struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Body   *struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"body"`
}

// BatchDelete deletes items from the signed-in user's drive in $batch calls
// of at most 20. Each item's outcome is independent: a 204 sub-response is a
// success, anything else is a failure carrying Graph's message. A chunk whose
// $batch call fails outright fails every ID in it. Chunks are sent in order.
func (c *Client) BatchDelete(ctx context.Context, ids []string) BatchDeleteResult {
	outcomes := make([]DeleteOutcome, 0, len(ids))

	for start := 0; start < len(ids); start += batchRequestLimit {
		end := min(start+batchRequestLimit, len(ids))
		outcomes = append(outcomes, c.deleteChunk(ctx, ids[start:end])...)
	}

	res := partitionOutcomes(outcomes)

	c.logger.Info("batch delete complete",
		slog.Int("requested", len(ids)),
		slog.Int("succeeded", len(res.SuccessfulIDs)),
		slog.Int("failed", len(res.Failures)),
	)

	return res
}

// deleteChunk returns one outcome per ID, in the order of chunk.
func (c *Client) deleteChunk(ctx context.Context, chunk []string) []DeleteOutcome {
	req := batchRequest{Requests: make([]batchSubRequest, len(chunk))}
	for i, id := range chunk {
		req.Requests[i] = batchSubRequest{
			ID:     strconv.Itoa(i + 1),
			Method: http.MethodDelete,
			URL:    "/me/drive/items/" + id,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return failAll(chunk, fmt.Errorf("graph: marshaling batch request: %w", err))
	}

	resp, err := c.Do(ctx, http.MethodPost, "/$batch", bytes.NewReader(body))
	if err != nil {
		var ge *GraphError
		if errors.As(err, &ge) {
			err = fmt.Errorf("Batch request failed with status %d: %s", ge.StatusCode, ge.Message) //nolint:staticcheck // message is shown to admins verbatim
		} else {
			err = fmt.Errorf("Batch request failed: %w", err) //nolint:staticcheck // message is shown to admins verbatim
		}

		c.logger.Warn("batch delete chunk failed",
			slog.Int("chunk_size", len(chunk)),
			slog.String("error", err.Error()),
		)

		return failAll(chunk, err)
	}
	defer resp.Body.Close()

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return failAll(chunk, fmt.Errorf("graph: decoding batch response: %w", err))
	}

	byID := make(map[string]batchSubResponse, len(br.Responses))
	for _, r := range br.Responses {
		byID[r.ID] = r
	}

	outcomes := make([]DeleteOutcome, len(chunk))
	for i, id := range chunk {
		outcomes[i] = DeleteOutcome{ID: id, Err: subResponseErr(byID, strconv.Itoa(i+1))}
	}

	return outcomes
}

func subResponseErr(byID map[string]batchSubResponse, reqID string) error {
	r, ok := byID[reqID]
	if !ok {
		return errors.New("No response received for this item") //nolint:staticcheck // message is shown to admins verbatim
	}

	if r.Status == http.StatusNoContent {
		return nil
	}

	if r.Body != nil && r.Body.Error != nil && r.Body.Error.Message != "" {
		return errors.New(r.Body.Error.Message)
	}

	return fmt.Errorf("Received status %d", r.Status) //nolint:staticcheck // message is shown to admins verbatim
}

func failAll(ids []string, err error) []DeleteOutcome {
	out := make([]DeleteOutcome, len(ids))
	for i, id := range ids {
		out[i] = DeleteOutcome{ID: id, Err: err}
	}

	return out
}
