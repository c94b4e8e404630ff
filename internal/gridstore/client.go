// Package gridstore is the REST client for the Plotly v2 grid API: creating
// grids, overwriting columns in place, and reconciling column counts when a
// query's shape drifts from what the grid last stored.
package gridstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/plotly/falcon/internal/domain"
)

// Client talks to one grid-store deployment on behalf of stored requestors.
type Client struct {
	baseURL string
	creds   domain.CredentialResolver
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a grid-store client. Each request is bounded by timeout;
// the scheduler does not impose its own deadline on grid updates.
func NewClient(baseURL string, creds domain.CredentialResolver, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// gridCol is one column entry in grid metadata.
type gridCol struct {
	UID   string `json:"uid"`
	Order int    `json:"order"`
}

// gridFile is the metadata payload for one grid.
type gridFile struct {
	Fid           string             `json:"fid"`
	Filename      string             `json:"filename"`
	Deleted       bool               `json:"deleted"`
	Cols          map[string]gridCol `json:"cols"`
	Collaborators struct {
		Results []struct {
			Username string `json:"username"`
		} `json:"results"`
	} `json:"collaborators"`
}

// orderedUIDs returns the grid's column uids sorted by column order.
func (f *gridFile) orderedUIDs() []string {
	type entry struct {
		uid   string
		order int
	}
	entries := make([]entry, 0, len(f.Cols))
	for _, col := range f.Cols {
		entries = append(entries, entry{uid: col.UID, order: col.Order})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	uids := make([]string, len(entries))
	for i, e := range entries {
		uids[i] = e.uid
	}
	return uids
}

func (f *gridFile) toMeta() *domain.GridMeta {
	meta := &domain.GridMeta{
		Fid:      f.Fid,
		Filename: f.Filename,
		Deleted:  f.Deleted,
		UIDs:     f.orderedUIDs(),
	}
	for _, collab := range f.Collaborators.Results {
		meta.Collaborators = append(meta.Collaborators, collab.Username)
	}
	return meta
}

// NewGrid creates a grid named filename holding the query result and returns
// its fid and column uids in column order.
func (c *Client) NewGrid(ctx context.Context, filename string, result *domain.QueryResult, requestor string) (string, []string, error) {
	columns, err := transpose(result)
	if err != nil {
		return "", nil, &domain.MetadataError{Err: err}
	}

	cols := make(map[string]map[string]any, len(result.Columnnames))
	for i, name := range result.Columnnames {
		cols[name] = map[string]any{"data": columns[i], "order": i}
	}
	body := map[string]any{
		"data":           map[string]any{"cols": cols},
		"world_readable": true,
		"parent":         -1,
		"filename":       filename,
	}

	resp, err := c.do(ctx, http.MethodPost, "grids", requestor, body)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", nil, apiError("grids", resp)
	}

	var created struct {
		File gridFile `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", nil, &domain.PlotlyAPIError{Err: fmt.Errorf("parse grid creation response: %w", err)}
	}
	return created.File.Fid, created.File.orderedUIDs(), nil
}

// GetGridMeta fetches the grid's metadata. A 404 response or a deleted=true
// body yields ErrGridDeleted.
func (c *Client) GetGridMeta(ctx context.Context, fid, requestor string) (*domain.GridMeta, error) {
	resp, err := c.do(ctx, http.MethodGet, "grids/"+fid, requestor, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrGridDeleted
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.MetadataError{Err: fmt.Errorf("fetch grid %s metadata: status %d", fid, resp.StatusCode)}
	}

	var file gridFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, &domain.MetadataError{Err: fmt.Errorf("parse grid %s metadata: %w", fid, err)}
	}
	if file.Deleted {
		return nil, domain.ErrGridDeleted
	}
	return file.toMeta(), nil
}

// PatchGridMeta applies a partial metadata update (e.g. renaming the grid).
func (c *Client) PatchGridMeta(ctx context.Context, fid, requestor string, meta map[string]any) error {
	resp, err := c.do(ctx, http.MethodPatch, "grids/"+fid, requestor, meta)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrGridDeleted
	}
	if !success(resp.StatusCode) {
		return &domain.MetadataError{Err: fmt.Errorf("patch grid %s metadata: status %d", fid, resp.StatusCode)}
	}
	return nil
}

// DeleteGrid moves the grid to the owner's trash. An already-deleted grid is
// not an error.
func (c *Client) DeleteGrid(ctx context.Context, fid, requestor string) error {
	resp, err := c.do(ctx, http.MethodPost, "grids/"+fid+"/trash", requestor, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if !success(resp.StatusCode) {
		return apiError("grids/"+fid+"/trash", resp)
	}
	return nil
}

// UpdateGrid pushes a query result into an existing grid. The grid's live
// column uids are re-fetched first; persisted uid lists are only a hint and
// may be stale after renames or manual edits. Columns are appended or
// deleted as needed so the grid ends up with exactly the incoming columns,
// then every column is overwritten with the incoming data. Returns the uid
// list that was written.
func (c *Client) UpdateGrid(ctx context.Context, result *domain.QueryResult, fid, requestor string) ([]string, error) {
	columns, err := transpose(result)
	if err != nil {
		return nil, &domain.MetadataError{Err: err}
	}

	meta, err := c.GetGridMeta(ctx, fid, requestor)
	if err != nil {
		return nil, err
	}
	uids := meta.UIDs

	switch {
	case len(result.Columnnames) > len(uids):
		created, err := c.createColumns(ctx, fid, requestor, result.Columnnames[len(uids):], len(uids))
		if err != nil {
			return nil, err
		}
		uids = append(uids, created...)
	case len(result.Columnnames) < len(uids):
		if err := c.deleteColumns(ctx, fid, requestor, uids[len(result.Columnnames):]); err != nil {
			return nil, err
		}
		uids = uids[:len(result.Columnnames)]
	}
	c.logger.Debug("reconciled grid columns", "fid", fid, "live", len(meta.UIDs), "incoming", len(result.Columnnames))

	cols := make([]map[string]any, len(columns))
	for i, col := range columns {
		cols[i] = map[string]any{"data": col}
	}
	colsJSON, err := json.Marshal(cols)
	if err != nil {
		return nil, &domain.PlotlyAPIError{Err: fmt.Errorf("serialize columns: %w", err)}
	}

	path := fmt.Sprintf("grids/%s/col?uid=%s", fid, url.QueryEscape(strings.Join(uids, ",")))
	resp, err := c.do(ctx, http.MethodPut, path, requestor, map[string]any{"cols": string(colsJSON)})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrGridDeleted
	}
	if !success(resp.StatusCode) {
		return nil, apiError("grids/"+fid+"/col", resp)
	}
	return uids, nil
}

// createColumns adds named, empty columns starting at the given order and
// returns their uids in creation order.
func (c *Client) createColumns(ctx context.Context, fid, requestor string, names []string, startOrder int) ([]string, error) {
	cols := make([]map[string]any, len(names))
	for i, name := range names {
		cols[i] = map[string]any{"name": name, "data": []any{}, "order": startOrder + i}
	}
	colsJSON, err := json.Marshal(cols)
	if err != nil {
		return nil, &domain.PlotlyAPIError{Err: fmt.Errorf("serialize new columns: %w", err)}
	}

	resp, err := c.do(ctx, http.MethodPost, "grids/"+fid+"/col", requestor, map[string]any{"cols": string(colsJSON)})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrGridDeleted
	}
	if !success(resp.StatusCode) {
		return nil, apiError("grids/"+fid+"/col", resp)
	}

	var created struct {
		Cols []gridCol `json:"cols"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, &domain.PlotlyAPIError{Err: fmt.Errorf("parse column creation response: %w", err)}
	}
	if len(created.Cols) != len(names) {
		return nil, &domain.MetadataError{Err: fmt.Errorf(
			"created %d columns but the grid store returned %d uids", len(names), len(created.Cols),
		)}
	}
	uids := make([]string, len(created.Cols))
	for i, col := range created.Cols {
		uids[i] = col.UID
	}
	return uids, nil
}

// deleteColumns removes the given columns from the grid.
func (c *Client) deleteColumns(ctx context.Context, fid, requestor string, uids []string) error {
	path := fmt.Sprintf("grids/%s/col?uid=%s", fid, url.QueryEscape(strings.Join(uids, ",")))
	resp, err := c.do(ctx, http.MethodDelete, path, requestor, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrGridDeleted
	}
	if !success(resp.StatusCode) {
		return apiError("grids/"+fid+"/col", resp)
	}
	return nil
}

// CheckWritePermissions resolves whether the requestor may update the grid:
// they must be its owner or listed as a collaborator.
func (c *Client) CheckWritePermissions(ctx context.Context, fid, requestor string) error {
	cred, err := c.creds.Resolve(requestor)
	if err != nil {
		return err
	}
	if !cred.Authenticated() {
		return domain.ErrUnauthenticated(
			"Attempting to update grid %s but the authentication credentials for the user %q do not exist.",
			fid, requestor,
		)
	}

	meta, err := c.GetGridMeta(ctx, fid, requestor)
	if err != nil {
		return err
	}

	owner, _, _ := strings.Cut(fid, ":")
	if owner == requestor {
		return nil
	}
	for _, collab := range meta.Collaborators {
		if collab == requestor {
			return nil
		}
	}
	return ErrPermissionDenied
}

// ErrPermissionDenied indicates the requestor may not write to the grid.
var ErrPermissionDenied = fmt.Errorf("permission denied")

// do issues one authenticated request against the v2 API.
func (c *Client) do(ctx context.Context, method, path, requestor string, body any) (*http.Response, error) {
	cred, err := c.creds.Resolve(requestor)
	if err != nil {
		return nil, err
	}
	if !cred.Authenticated() {
		return nil, domain.ErrUnauthenticated("missing apiKey or accessToken for user %q", requestor)
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &domain.PlotlyAPIError{Err: fmt.Errorf("serialize request body: %w", err)}
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/v2/"+path, payload)
	if err != nil {
		return nil, &domain.PlotlyAPIError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Plotly-Client-Platform", "db-connect")
	if cred.APIKey != "" {
		req.SetBasicAuth(cred.Username, cred.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.PlotlyAPIError{Err: err}
	}
	return resp, nil
}

func success(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusNoContent
}

// apiError drains a failed response into a PlotlyAPIError carrying the
// status and a body excerpt.
func apiError(path string, resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &domain.PlotlyAPIError{Err: fmt.Errorf(
		"request %q failed: status %d, body %s", path, resp.StatusCode, strings.TrimSpace(string(excerpt)),
	)}
}

// transpose converts a row-major result into column-major data, rejecting
// irregular row widths rather than silently truncating them.
func transpose(result *domain.QueryResult) ([][]any, error) {
	width := len(result.Columnnames)
	columns := make([][]any, width)
	for i := range columns {
		columns[i] = make([]any, len(result.Rows))
	}
	for i, row := range result.Rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values but the result has %d columns", i, len(row), width)
		}
		for j, v := range row {
			columns[j][i] = v
		}
	}
	return columns, nil
}

var _ domain.GridClient = (*Client)(nil)
