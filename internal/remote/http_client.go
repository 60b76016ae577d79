package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/localcal/internal/persistence"
)

// HTTPClient talks to the calendar server over its JSON API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient builds a client for the server at baseURL. The token is sent
// as a bearer credential on every request.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Category: CategoryValidation, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Category: CategoryValidation, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: all retryable.
		return &Error{Category: CategoryTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromStatus(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Category: CategoryTransient, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func errorFromStatus(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	if payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}

	category := CategoryTransient
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		category = CategoryNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		category = CategoryAuth
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		category = CategoryValidation
	case resp.StatusCode >= 500:
		category = CategoryTransient
	}
	return &Error{Category: category, Status: resp.StatusCode, Message: payload.Message}
}

// CreateCalendar registers a new calendar and returns the server copy.
func (c *HTTPClient) CreateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	var out calendarDTO
	req := calendarToDTO(calendar)
	// The server assigns the canonical id.
	req.ID = ""
	if err := c.do(ctx, http.MethodPost, "/api/calendars", req, &out); err != nil {
		return persistence.Calendar{}, err
	}
	return calendarFromDTO(out), nil
}

// UpdateCalendar overwrites the server calendar field by field.
func (c *HTTPClient) UpdateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	var out calendarDTO
	if err := c.do(ctx, http.MethodPut, "/api/calendars/"+url.PathEscape(calendar.ID), calendarToDTO(calendar), &out); err != nil {
		return persistence.Calendar{}, err
	}
	return calendarFromDTO(out), nil
}

// DeleteCalendar removes the server calendar.
func (c *HTTPClient) DeleteCalendar(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/calendars/"+url.PathEscape(id), nil, nil)
}

// ListCalendars fetches every calendar visible to the session.
func (c *HTTPClient) ListCalendars(ctx context.Context) ([]persistence.Calendar, error) {
	var out []calendarDTO
	if err := c.do(ctx, http.MethodGet, "/api/calendars", nil, &out); err != nil {
		return nil, err
	}
	calendars := make([]persistence.Calendar, 0, len(out))
	for _, d := range out {
		calendars = append(calendars, calendarFromDTO(d))
	}
	return calendars, nil
}

// CreateEvent registers a new event and returns the server copy.
func (c *HTTPClient) CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	var out eventDTO
	req := eventToDTO(event)
	req.ID = ""
	if err := c.do(ctx, http.MethodPost, "/api/events", req, &out); err != nil {
		return persistence.Event{}, err
	}
	return eventFromDTO(out), nil
}

// UpdateEvent overwrites the server event field by field.
func (c *HTTPClient) UpdateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	var out eventDTO
	if err := c.do(ctx, http.MethodPut, "/api/events/"+url.PathEscape(event.ID), eventToDTO(event), &out); err != nil {
		return persistence.Event{}, err
	}
	return eventFromDTO(out), nil
}

// DeleteEvent removes the server event.
func (c *HTTPClient) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/events/"+url.PathEscape(id), nil, nil)
}

// ListEvents fetches every event in a calendar.
func (c *HTTPClient) ListEvents(ctx context.Context, calendarID string) ([]persistence.Event, error) {
	var out []eventDTO
	if err := c.do(ctx, http.MethodGet, "/api/calendars/"+url.PathEscape(calendarID)+"/events", nil, &out); err != nil {
		return nil, err
	}
	events := make([]persistence.Event, 0, len(out))
	for _, d := range out {
		events = append(events, eventFromDTO(d))
	}
	return events, nil
}

// CreateGroup registers a new group and returns the server copy.
func (c *HTTPClient) CreateGroup(ctx context.Context, group persistence.Group) (persistence.Group, error) {
	var out groupDTO
	req := groupToDTO(group)
	req.ID = ""
	if err := c.do(ctx, http.MethodPost, "/api/groups", req, &out); err != nil {
		return persistence.Group{}, err
	}
	return groupFromDTO(out), nil
}

// UpdateGroup overwrites the server group field by field.
func (c *HTTPClient) UpdateGroup(ctx context.Context, group persistence.Group) (persistence.Group, error) {
	var out groupDTO
	if err := c.do(ctx, http.MethodPut, "/api/groups/"+url.PathEscape(group.ID), groupToDTO(group), &out); err != nil {
		return persistence.Group{}, err
	}
	return groupFromDTO(out), nil
}

// DeleteGroup removes the server group.
func (c *HTTPClient) DeleteGroup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/groups/"+url.PathEscape(id), nil, nil)
}

// ListGroups fetches every group the session belongs to.
func (c *HTTPClient) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	var out []groupDTO
	if err := c.do(ctx, http.MethodGet, "/api/groups", nil, &out); err != nil {
		return nil, err
	}
	groups := make([]persistence.Group, 0, len(out))
	for _, d := range out {
		groups = append(groups, groupFromDTO(d))
	}
	return groups, nil
}

var _ Client = (*HTTPClient)(nil)
