package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"lootbox-backend/internal/models"
)

const (
	ownedObjectsPageSize = 50
	maxOwnedObjectPages  = 20
)

var ErrObjectNotFound = errors.New("object not found")

type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client talks to a Sui full node over JSON-RPC.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Uint64
}

func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{url: url, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func (c *Client) call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%s: malformed response", method)
	}

	parsed := gjson.ParseBytes(data)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, &RPCError{
			Code:    rpcErr.Get("code").Int(),
			Message: rpcErr.Get("message").String(),
		})
	}

	result := parsed.Get("result")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%s: response has no result", method)
	}

	return result, nil
}

func (c *Client) GetTransactionOutcome(ctx context.Context, digest string, opts models.OutcomeOptions) (*models.TransactionOutcome, error) {
	result, err := c.call(ctx, "sui_getTransactionBlock", digest, map[string]bool{
		"showEffects":       opts.ShowEffects,
		"showEvents":        opts.ShowEvents,
		"showObjectChanges": opts.ShowObjectChanges,
	})
	if err != nil {
		return nil, err
	}

	outcome := &models.TransactionOutcome{
		Digest: result.Get("digest").String(),
		Status: result.Get("effects.status.status").String(),
	}

	result.Get("events").ForEach(func(_, ev gjson.Result) bool {
		outcome.Events = append(outcome.Events, models.LedgerEvent{
			Type:       ev.Get("type").String(),
			ParsedJSON: json.RawMessage(ev.Get("parsedJson").Raw),
		})
		return true
	})

	result.Get("objectChanges").ForEach(func(_, ch gjson.Result) bool {
		outcome.ObjectChanges = append(outcome.ObjectChanges, models.ObjectChange{
			Type:       ch.Get("type").String(),
			ObjectID:   ch.Get("objectId").String(),
			ObjectType: ch.Get("objectType").String(),
		})
		return true
	})

	return outcome, nil
}

var objectOptions = map[string]bool{"showContent": true, "showType": true}

func (c *Client) GetObject(ctx context.Context, id string) (*models.LedgerObject, error) {
	result, err := c.call(ctx, "sui_getObject", id, objectOptions)
	if err != nil {
		return nil, err
	}

	if result.Get("error").Exists() || !result.Get("data").Exists() {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	obj := parseObject(result.Get("data"))
	return &obj, nil
}

// ListOwnedObjects walks every page of owned objects of structType.
func (c *Client) ListOwnedObjects(ctx context.Context, owner, structType string) ([]models.LedgerObject, error) {
	query := map[string]any{
		"filter":  map[string]string{"StructType": structType},
		"options": objectOptions,
	}

	var (
		objects []models.LedgerObject
		cursor  any
	)
	for page := 0; page < maxOwnedObjectPages; page++ {
		result, err := c.call(ctx, "suix_getOwnedObjects", owner, query, cursor, ownedObjectsPageSize)
		if err != nil {
			return nil, err
		}

		result.Get("data").ForEach(func(_, entry gjson.Result) bool {
			if data := entry.Get("data"); data.Exists() {
				objects = append(objects, parseObject(data))
			}
			return true
		})

		if !result.Get("hasNextPage").Bool() {
			return objects, nil
		}
		cursor = result.Get("nextCursor").String()
	}

	return objects, nil
}

func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (uint64, error) {
	result, err := c.call(ctx, "suix_getBalance", owner, coinType)
	if err != nil {
		return 0, err
	}

	total, err := strconv.ParseUint(result.Get("totalBalance").String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid totalBalance: %w", err)
	}
	return total, nil
}

func parseObject(data gjson.Result) models.LedgerObject {
	objType := data.Get("type").String()
	if objType == "" {
		objType = data.Get("content.type").String()
	}

	fields := data.Get("content.fields").Raw
	if fields == "" {
		fields = "null"
	}

	return models.LedgerObject{
		ID:      data.Get("objectId").String(),
		Type:    objType,
		Version: data.Get("version").Uint(),
		Fields:  json.RawMessage(fields),
	}
}
