// Package googletasks implements the gateway.Gateway interface using the
// Google Tasks API.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"slidetasks/internal/config"
	"slidetasks/internal/gateway"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks per page.
	PageSize = 100

	// APITimeout bounds every remote call.
	APITimeout = 10 * time.Second

	// OAuth scope for Google Tasks
	tasksScope = "https://www.googleapis.com/auth/tasks"
)

// Client implements gateway.Gateway using Google Tasks API.
type Client struct {
	svc      *tasks.Service
	lookback time.Duration
}

// New creates a new Google Tasks client.
// Requires oauth_client.json and token.json to exist under the config dir.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(clientJSON, tasksScope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}

	tokenData, err := os.ReadFile(cfg.TokenPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read token.json: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}

	// Token source auto-refreshes; a dead refresh token surfaces as a
	// 401 on the next call and is classified as an auth error.
	tokenSource := oauthConfig.TokenSource(ctx, &token)
	httpClient := oauth2.NewClient(ctx, tokenSource)

	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}

	return &Client{
		svc:      svc,
		lookback: cfg.Settings.CompletedLookback(),
	}, nil
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client) (*Client, error) {
	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc, lookback: 24 * time.Hour}, nil
}

// ListLists returns all task lists in API order.
func (c *Client) ListLists(ctx context.Context) ([]gateway.TaskList, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var result []gateway.TaskList
	pos := 0
	err := c.svc.Tasklists.List().MaxResults(100).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, list := range resp.Items {
			result = append(result, gateway.TaskList{
				ID:       list.Id,
				Title:    list.Title,
				Position: pos,
			})
			pos++
		}
		return nil
	})
	if err != nil {
		return nil, classify("lists", err)
	}
	return result, nil
}

// FetchSnapshot returns the full state of a list: all open tasks plus tasks
// completed within the lookback window. The two result sets are merged by id
// so a task completed mid-pagination is not duplicated.
func (c *Client) FetchSnapshot(ctx context.Context, listID string) (gateway.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	byID := make(map[string]gateway.RemoteTask)
	var order []string

	collect := func(resp *tasks.Tasks) error {
		for _, t := range resp.Items {
			if _, seen := byID[t.Id]; !seen {
				order = append(order, t.Id)
			}
			byID[t.Id] = fromAPI(t)
		}
		return nil
	}

	openCall := c.svc.Tasks.List(listID).
		MaxResults(PageSize).
		ShowCompleted(false).
		ShowDeleted(false).
		ShowHidden(false)
	if err := openCall.Pages(ctx, collect); err != nil {
		return gateway.Snapshot{}, classify("snapshot", err)
	}

	minDate := time.Now().Add(-c.lookback).UTC().Format(time.RFC3339)
	doneCall := c.svc.Tasks.List(listID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		CompletedMin(minDate)
	if err := doneCall.Pages(ctx, collect); err != nil {
		return gateway.Snapshot{}, classify("snapshot", err)
	}

	snap := gateway.Snapshot{ListID: listID}
	for _, id := range order {
		snap.Tasks = append(snap.Tasks, byID[id])
	}
	return snap, nil
}

// PushCreate creates a task remote-side and returns the remote id.
func (c *Client) PushCreate(ctx context.Context, listID string, t gateway.RemoteTask) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	body := &tasks.Task{
		Title:  t.Title,
		Notes:  t.Notes,
		Status: gateway.StatusOpen,
	}
	if t.Due != "" {
		body.Due = t.Due + "T00:00:00.000Z"
	}

	call := c.svc.Tasks.Insert(listID, body)
	if t.Parent != "" {
		call = call.Parent(t.Parent)
	}
	created, err := call.Context(ctx).Do()
	if err != nil {
		return "", classify("create", err)
	}
	return created.Id, nil
}

// PushStatus sets a task's completion status remote-side.
// The API requires a get-then-update round trip to preserve other fields.
func (c *Client) PushStatus(ctx context.Context, listID, taskID, status string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	task, err := c.svc.Tasks.Get(listID, taskID).Context(ctx).Do()
	if err != nil {
		return classify("status", err)
	}

	task.Status = status
	if status == gateway.StatusOpen {
		task.Completed = nil
		task.ForceSendFields = append(task.ForceSendFields, "Completed")
	}

	if _, err := c.svc.Tasks.Update(listID, taskID, task).Context(ctx).Do(); err != nil {
		return classify("status", err)
	}
	return nil
}

// PushTitle sets a task's title remote-side.
func (c *Client) PushTitle(ctx context.Context, listID, taskID, title string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	task, err := c.svc.Tasks.Get(listID, taskID).Context(ctx).Do()
	if err != nil {
		return classify("title", err)
	}
	if task.Title == title {
		return nil
	}
	task.Title = title

	if _, err := c.svc.Tasks.Update(listID, taskID, task).Context(ctx).Do(); err != nil {
		return classify("title", err)
	}
	return nil
}

// FetchHistory returns completions recorded remote-side within [from, to].
func (c *Client) FetchHistory(ctx context.Context, listID string, from, to time.Time) ([]gateway.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	call := c.svc.Tasks.List(listID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		CompletedMin(from.UTC().Format(time.RFC3339)).
		CompletedMax(to.UTC().Format(time.RFC3339))

	var result []gateway.Completion
	err := call.Pages(ctx, func(resp *tasks.Tasks) error {
		for _, t := range resp.Items {
			if t.Status != gateway.StatusCompleted || t.Completed == nil {
				continue
			}
			done, err := time.Parse(time.RFC3339, *t.Completed)
			if err != nil {
				continue
			}
			result = append(result, gateway.Completion{
				TaskID:      t.Id,
				Title:       t.Title,
				CompletedAt: done,
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify("history", err)
	}
	return result, nil
}

// fromAPI converts an API task into the gateway representation.
func fromAPI(t *tasks.Task) gateway.RemoteTask {
	rt := gateway.RemoteTask{
		ID:       t.Id,
		Title:    t.Title,
		Notes:    t.Notes,
		Status:   t.Status,
		Parent:   t.Parent,
		Position: t.Position,
	}
	if t.Due != "" {
		if due, err := time.Parse(time.RFC3339, t.Due); err == nil {
			rt.Due = due.Format("2006-01-02")
		}
	}
	if t.Completed != nil {
		if done, err := time.Parse(time.RFC3339, *t.Completed); err == nil {
			rt.CompletedAt = done
		}
	}
	return rt
}

// classify maps an API error onto a gateway error kind.
// 401/403 mean expired or revoked credentials; 400/404 can never succeed on
// retry; everything else (5xx, timeouts, DNS failures) is transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	kind := gateway.KindTransient

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = gateway.KindAuth
		case http.StatusNotFound, http.StatusBadRequest:
			kind = gateway.KindPermanent
		}
	}

	// oauth2 surfaces refresh failures as RetrieveError, not googleapi.Error.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		kind = gateway.KindAuth
	}

	return &gateway.Error{Kind: kind, Op: op, Err: err}
}
