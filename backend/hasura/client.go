// Package hasura implements normcache.Backend against a Hasura GraphQL endpoint.
//
// For a type tag T the client uses the root fields Hasura generates for table T:
// T (list, newest first), insert_T_one, update_T_by_pk and delete_T_by_pk.
package hasura

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goforj/normcache"
)

const (
	defaultTimeout = 10 * time.Second
	defaultIDType  = "uuid"
	defaultOrderBy = "created_at"

	adminSecretHeader = "x-hasura-admin-secret"
)

var (
	defaultColumns = []string{"id", "name", "created_at"}
	identRE        = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	ErrEndpoint = errors.New("hasura: endpoint is required")
)

// Config controls the client.
type Config struct {
	// Endpoint is the GraphQL URL, e.g. http://localhost:8080/v1/graphql.
	Endpoint string
	// AdminSecret is sent as x-hasura-admin-secret when set.
	AdminSecret string
	// HTTPClient overrides the default client (10s timeout).
	HTTPClient *http.Client
	// Columns selected for every entity. Must include id.
	Columns []string
	// IDType is the GraphQL type of the primary key. Defaults to uuid.
	IDType string
	// OrderBy is the column lists sort on, descending. Defaults to created_at.
	OrderBy string
	Logger  *slog.Logger
}

// Client is a normcache.Backend.
type Client struct {
	endpoint    string
	adminSecret string
	http        *http.Client
	columns     []string
	idType      string
	orderBy     string
	logger      *slog.Logger
}

var _ normcache.Backend = (*Client)(nil)

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpoint
	}
	c := &Client{
		endpoint:    cfg.Endpoint,
		adminSecret: cfg.AdminSecret,
		http:        cfg.HTTPClient,
		columns:     cfg.Columns,
		idType:      cfg.IDType,
		orderBy:     cfg.OrderBy,
		logger:      cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if len(c.columns) == 0 {
		c.columns = defaultColumns
	}
	if c.idType == "" {
		c.idType = defaultIDType
	}
	if c.orderBy == "" {
		c.orderBy = defaultOrderBy
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	hasID := false
	for _, col := range append([]string{c.orderBy}, c.columns...) {
		if !identRE.MatchString(col) {
			return nil, fmt.Errorf("hasura: invalid column %q", col)
		}
		hasID = hasID || col == "id"
	}
	if !hasID {
		return nil, errors.New("hasura: columns must include id")
	}
	if !identRE.MatchString(strings.TrimSuffix(c.idType, "!")) {
		return nil, fmt.Errorf("hasura: invalid id type %q", c.idType)
	}
	return c, nil
}

// ListEntities implements normcache.Backend.
func (c *Client) ListEntities(ctx context.Context, typeTag string) ([]normcache.Entity, error) {
	if err := validTypeTag(typeTag); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`query List { %s(order_by: {%s: desc}) { %s } }`, typeTag, c.orderBy, c.selection())
	var data map[string][]map[string]any
	if err := c.do(ctx, "List", query, nil, &data); err != nil {
		return nil, err
	}
	rows := data[typeTag]
	out := make([]normcache.Entity, 0, len(rows))
	for _, row := range rows {
		out = append(out, toEntity(typeTag, row))
	}
	return out, nil
}

// CreateEntity implements normcache.Backend.
func (c *Client) CreateEntity(ctx context.Context, typeTag string, fields map[string]any) (normcache.Entity, error) {
	if err := validTypeTag(typeTag); err != nil {
		return normcache.Entity{}, err
	}
	root := "insert_" + typeTag + "_one"
	query := fmt.Sprintf(`mutation Insert($object: %s_insert_input!) { %s(object: $object) { %s } }`,
		typeTag, root, c.selection())
	var data map[string]map[string]any
	if err := c.do(ctx, "Insert", query, map[string]any{"object": fields}, &data); err != nil {
		return normcache.Entity{}, err
	}
	row := data[root]
	if row == nil {
		return normcache.Entity{}, normcache.Rejected(fmt.Sprintf("insert into %s returned no row", typeTag))
	}
	return toEntity(typeTag, row), nil
}

// UpdateEntity implements normcache.Backend. An unknown id is rejected.
func (c *Client) UpdateEntity(ctx context.Context, typeTag, id string, fields map[string]any) (normcache.Entity, error) {
	if err := validTypeTag(typeTag); err != nil {
		return normcache.Entity{}, err
	}
	root := "update_" + typeTag + "_by_pk"
	query := fmt.Sprintf(`mutation Update($id: %s!, $set: %s_set_input!) { %s(pk_columns: {id: $id}, _set: $set) { %s } }`,
		strings.TrimSuffix(c.idType, "!"), typeTag, root, c.selection())
	var data map[string]map[string]any
	if err := c.do(ctx, "Update", query, map[string]any{"id": id, "set": fields}, &data); err != nil {
		return normcache.Entity{}, err
	}
	row := data[root]
	if row == nil {
		return normcache.Entity{}, normcache.Rejected(fmt.Sprintf("no %s with id %q", typeTag, id))
	}
	return toEntity(typeTag, row), nil
}

// DeleteEntity implements normcache.Backend. Deleting an unknown id returns "".
func (c *Client) DeleteEntity(ctx context.Context, typeTag, id string) (string, error) {
	if err := validTypeTag(typeTag); err != nil {
		return "", err
	}
	root := "delete_" + typeTag + "_by_pk"
	query := fmt.Sprintf(`mutation Delete($id: %s!) { %s(id: $id) { id } }`, strings.TrimSuffix(c.idType, "!"), root)
	var data map[string]map[string]any
	if err := c.do(ctx, "Delete", query, map[string]any{"id": id}, &data); err != nil {
		return "", err
	}
	row := data[root]
	if row == nil {
		return "", nil
	}
	return idString(row["id"]), nil
}

func (c *Client) selection() string {
	return "__typename " + strings.Join(c.columns, " ")
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// do posts one operation. Transport failures and non-2xx statuses come back as plain
// errors; GraphQL errors come back as normcache.Rejected with the server's message.
func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(gqlRequest{OperationName: op, Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("hasura: marshal %s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("hasura: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminSecret != "" {
		req.Header.Set(adminSecretHeader, c.adminSecret)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hasura: %s: %w", op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", "operation", op, "error", err)
		}
	}()
	c.logger.DebugContext(ctx, "graphql request", "operation", op, "status", resp.StatusCode, "duration", time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hasura: read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hasura: %s returned status %d", op, resp.StatusCode)
	}

	var envelope gqlResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("hasura: decode %s response: %w", op, err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return normcache.Rejected(strings.Join(msgs, "; "))
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("hasura: %s response has no data", op)
	}
	// Numbers stay json.Number so integer keys beyond 2^53 keep every digit.
	dec := json.NewDecoder(bytes.NewReader(envelope.Data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("hasura: decode %s data: %w", op, err)
	}
	return nil
}

func validTypeTag(typeTag string) error {
	if !identRE.MatchString(typeTag) {
		return normcache.Rejected(fmt.Sprintf("hasura: invalid type %q", typeTag))
	}
	return nil
}

func toEntity(typeTag string, row map[string]any) normcache.Entity {
	e := normcache.Entity{TypeTag: typeTag, ID: idString(row["id"])}
	if tn, ok := row["__typename"].(string); ok && tn != "" {
		e.TypeTag = tn
	}
	for k, v := range row {
		if k == "id" || k == "__typename" {
			continue
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]any, len(row))
		}
		e.Attributes[k] = v
	}
	return e
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
