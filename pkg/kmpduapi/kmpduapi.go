// Package kmpduapi provides a client for the remote KMPDU election backend.
package kmpduapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
)

// ErrNotConfigured is returned by every call when no backend URL is set
var ErrNotConfigured = errors.New("kmpdu backend URL is not configured")

// ErrUnexpectedShape is returned when a response decodes to neither known layout
var ErrUnexpectedShape = errors.New("unexpected response shape")

// FlexInt is an int that can be unmarshaled from either a number or a numeric string.
// The backend is not consistent about quoting counts.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler for FlexInt
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		i, err := strconv.Atoi(n.String())
		if err != nil {
			fl, ferr := n.Float64()
			if ferr != nil {
				return fmt.Errorf("FlexInt: cannot unmarshal %s", string(data))
			}
			i = int(fl)
		}
		*f = FlexInt(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("FlexInt: cannot unmarshal %q", s)
		}
		*f = FlexInt(i)
		return nil
	}

	return fmt.Errorf("FlexInt: cannot unmarshal %s", string(data))
}

// Candidate is a candidate as sent by the backend
type Candidate struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Bio       string  `json:"bio"`
	Photo     string  `json:"photo,omitempty"`
	VoteCount FlexInt `json:"voteCount"`
}

// Position is a position as sent by the backend
type Position struct {
	ID             string      `json:"id"`
	ElectionID     string      `json:"electionId,omitempty"`
	Title          string      `json:"title"`
	Type           string      `json:"type"`
	Branch         string      `json:"branch,omitempty"`
	Candidates     []Candidate `json:"candidates"`
	TotalVotes     FlexInt     `json:"totalVotes"`
	EligibleVoters FlexInt     `json:"eligibleVoters"`
	Status         string      `json:"status"`
	StartTime      time.Time   `json:"startTime"`
	EndTime        time.Time   `json:"endTime"`
	WinnerID       string      `json:"winnerId,omitempty"`
	WinnerVotes    FlexInt     `json:"winnerVotes,omitempty"`
}

// Model converts the wire position to the domain model.
// The total is recomputed from candidate counts so the ledger invariant holds.
func (p Position) Model() models.Position {
	out := models.Position{
		ID:             p.ID,
		ElectionID:     p.ElectionID,
		Title:          p.Title,
		Type:           models.PositionType(strings.ToLower(p.Type)),
		Branch:         p.Branch,
		Candidates:     make([]models.Candidate, len(p.Candidates)),
		EligibleVoters: int(p.EligibleVoters),
		Status:         models.PositionStatus(strings.ToLower(p.Status)),
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
		WinnerID:       p.WinnerID,
		WinnerVotes:    int(p.WinnerVotes),
	}
	for i, c := range p.Candidates {
		out.Candidates[i] = models.Candidate{
			ID:        c.ID,
			Name:      c.Name,
			Bio:       c.Bio,
			Photo:     c.Photo,
			VoteCount: int(c.VoteCount),
		}
	}
	out.RecountTotal()
	return out
}

// ToModels converts a slice of wire positions
func ToModels(positions []Position) []models.Position {
	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, p.Model())
	}
	return out
}

// BallotResponse accepts either a bare array of positions or an object
// with a "positions" field.
type BallotResponse struct {
	Positions []Position
}

// UnmarshalJSON implements json.Unmarshaler for BallotResponse
func (b *BallotResponse) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		b.Positions = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		return json.Unmarshal(trimmed, &b.Positions)
	case '{':
		var wrapped struct {
			Positions []Position `json:"positions"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		b.Positions = wrapped.Positions
		return nil
	}
	return fmt.Errorf("ballot: %w", ErrUnexpectedShape)
}

// Election is an election as listed by the backend
type Election struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    string     `json:"status,omitempty"`
	Positions []Position `json:"positions"`
}

// ElectionsResponse accepts either a bare array of elections or an object
// with an "elections" field.
type ElectionsResponse struct {
	Elections []Election
}

// UnmarshalJSON implements json.Unmarshaler for ElectionsResponse
func (e *ElectionsResponse) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		e.Elections = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		return json.Unmarshal(trimmed, &e.Elections)
	case '{':
		var wrapped struct {
			Elections []Election `json:"elections"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		e.Elections = wrapped.Elections
		return nil
	}
	return fmt.Errorf("elections: %w", ErrUnexpectedShape)
}

// Positions flattens every election's positions, stamping the election id
// onto positions that lack one.
func (e ElectionsResponse) Positions() []models.Position {
	var out []models.Position
	for _, el := range e.Elections {
		for _, p := range el.Positions {
			m := p.Model()
			if m.ElectionID == "" {
				m.ElectionID = el.ID
			}
			out = append(out, m)
		}
	}
	return out
}

// VotePayload is one vote in a cast request
type VotePayload struct {
	PositionID  string `json:"positionId"`
	CandidateID string `json:"candidateId"`
	ElectionID  string `json:"electionId"`
}

// CastRequest is the body of POST /api/votes/cast
type CastRequest struct {
	UserID string        `json:"userId"`
	Votes  []VotePayload `json:"votes"`
}

// CastResponse is the backend's acknowledgement of a cast. Both fields are optional.
type CastResponse struct {
	BlockchainHash    string `json:"blockchainHash,omitempty"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

// Client defines the interface for KMPDU backend operations
type Client interface {
	// GetBallot retrieves the positions a member may vote on
	GetBallot(ctx context.Context, memberID string) ([]models.Position, error)
	// GetElections retrieves every election and flattens their positions
	GetElections(ctx context.Context) ([]models.Position, error)
	// CastVotes submits votes; the idempotency key is sent as a header so replays are safe
	CastVotes(ctx context.Context, userID string, votes []VotePayload, idempotencyKey string) (CastResponse, error)
	// GetResults retrieves the tallies of one election
	GetResults(ctx context.Context, electionID string) ([]models.Position, error)
	// SetToken configures the bearer token sent with every request
	SetToken(token string)
	// BaseURL returns the configured backend base URL
	BaseURL() string
	// SetBaseURL updates the backend base URL
	SetBaseURL(url string)
}

// HTTPClient is a real HTTP client for the KMPDU backend
type HTTPClient struct {
	mu         sync.RWMutex
	baseURL    string
	token      string
	httpClient *http.Client
	log        logger.Logger
}

// NewHTTPClient creates a new backend HTTP client
func NewHTTPClient(baseURL string, log logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// NewHTTPClientWithHTTPClient creates a new backend client with a custom http.Client
func NewHTTPClientWithHTTPClient(baseURL string, httpClient *http.Client, log logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// BaseURL returns the configured backend base URL
func (c *HTTPClient) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL updates the backend base URL
func (c *HTTPClient) SetBaseURL(u string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(u, "/")
	c.mu.Unlock()
}

// SetToken configures the bearer token
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// doRequest executes a JSON request against the backend and decodes the response.
// Non-2xx statuses are returned as errors carrying the response body.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body interface{}, headers map[string]string, response interface{}) error {
	c.mu.RLock()
	base, token := c.baseURL, c.token
	c.mu.RUnlock()

	if base == "" {
		return ErrNotConfigured
	}

	apiURL := base + path

	var reader io.Reader
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	c.log.Debug("KMPDU request", "method", method, "url", apiURL, "body", string(payload))

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to KMPDU backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug("KMPDU response", "status", resp.StatusCode, "body", string(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("KMPDU backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if response == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, response); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// GetBallot retrieves the member's personal ballot
func (c *HTTPClient) GetBallot(ctx context.Context, memberID string) ([]models.Position, error) {
	var resp BallotResponse
	path := "/api/votes/ballot/" + url.PathEscape(memberID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return ToModels(resp.Positions), nil
}

// GetElections retrieves the full election list as positions
func (c *HTTPClient) GetElections(ctx context.Context) ([]models.Position, error) {
	var resp ElectionsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/elections", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions(), nil
}

// CastVotes submits one or more votes for a user
func (c *HTTPClient) CastVotes(ctx context.Context, userID string, votes []VotePayload, idempotencyKey string) (CastResponse, error) {
	var resp CastResponse
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	req := CastRequest{UserID: userID, Votes: votes}
	if err := c.doRequest(ctx, http.MethodPost, "/api/votes/cast", req, headers, &resp); err != nil {
		return CastResponse{}, err
	}
	c.log.Info("KMPDU vote cast accepted", "user_id", userID, "votes", len(votes), "hash", resp.BlockchainHash)
	return resp, nil
}

// GetResults retrieves the tallies for one election
func (c *HTTPClient) GetResults(ctx context.Context, electionID string) ([]models.Position, error) {
	var resp BallotResponse
	path := "/api/elections/" + url.PathEscape(electionID) + "/results"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	out := ToModels(resp.Positions)
	for i := range out {
		if out[i].ElectionID == "" {
			out[i].ElectionID = electionID
		}
	}
	return out, nil
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
