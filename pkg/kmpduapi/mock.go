package kmpduapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kmpdu/evote/internal/models"
)

// CastCall records one CastVotes invocation on the mock
type CastCall struct {
	UserID         string
	Votes          []VotePayload
	IdempotencyKey string
}

// MockClient is a mock implementation of Client for testing
type MockClient struct {
	mu sync.Mutex

	baseURL   string
	token     string
	ballot    []models.Position
	elections []models.Position
	results   map[string][]models.Position

	ballotErr    error
	electionsErr error
	resultsErr   error
	castErr      error
	castErrs     []error // consumed in order before castErr applies
	castResponse CastResponse
	castDelay    time.Duration

	castCalls     []CastCall
	ballotCalls   []string
	electionCalls int
}

// MockOption configures a MockClient
type MockOption func(*MockClient)

// WithBallot sets the positions returned from GetBallot
func WithBallot(positions []models.Position) MockOption {
	return func(m *MockClient) {
		m.ballot = positions
	}
}

// WithBallotError sets an error to return from GetBallot
func WithBallotError(err error) MockOption {
	return func(m *MockClient) {
		m.ballotErr = err
	}
}

// WithElections sets the positions returned from GetElections
func WithElections(positions []models.Position) MockOption {
	return func(m *MockClient) {
		m.elections = positions
	}
}

// WithElectionsError sets an error to return from GetElections
func WithElectionsError(err error) MockOption {
	return func(m *MockClient) {
		m.electionsErr = err
	}
}

// WithResults sets the positions returned from GetResults for an election
func WithResults(electionID string, positions []models.Position) MockOption {
	return func(m *MockClient) {
		m.results[electionID] = positions
	}
}

// WithResultsError sets an error to return from GetResults
func WithResultsError(err error) MockOption {
	return func(m *MockClient) {
		m.resultsErr = err
	}
}

// WithCastResponse sets the acknowledgement returned from CastVotes
func WithCastResponse(resp CastResponse) MockOption {
	return func(m *MockClient) {
		m.castResponse = resp
	}
}

// WithCastError sets an error to return from every CastVotes call
func WithCastError(err error) MockOption {
	return func(m *MockClient) {
		m.castErr = err
	}
}

// WithCastErrorSequence makes successive CastVotes calls fail with the given
// errors, one per call; a nil entry lets that call succeed.
func WithCastErrorSequence(errs ...error) MockOption {
	return func(m *MockClient) {
		m.castErrs = append(m.castErrs, errs...)
	}
}

// WithCastDelay makes CastVotes block for d or until the context is done
func WithCastDelay(d time.Duration) MockOption {
	return func(m *MockClient) {
		m.castDelay = d
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(url string) MockOption {
	return func(m *MockClient) {
		m.baseURL = url
	}
}

// NewMockClient creates a new mock backend client
func NewMockClient(opts ...MockOption) *MockClient {
	m := &MockClient{
		baseURL: "http://mock-kmpdu.local",
		results: make(map[string][]models.Position),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BaseURL returns the configured base URL
func (m *MockClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseURL
}

// SetBaseURL updates the base URL
func (m *MockClient) SetBaseURL(url string) {
	m.mu.Lock()
	m.baseURL = url
	m.mu.Unlock()
}

// SetToken records the bearer token
func (m *MockClient) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// Token returns the last token set (for testing)
func (m *MockClient) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// GetBallot returns the configured ballot or error
func (m *MockClient) GetBallot(ctx context.Context, memberID string) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ballotCalls = append(m.ballotCalls, memberID)
	if m.ballotErr != nil {
		return nil, m.ballotErr
	}
	return clonePositions(m.ballot), nil
}

// GetElections returns the configured election positions or error
func (m *MockClient) GetElections(ctx context.Context) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.electionCalls++
	if m.electionsErr != nil {
		return nil, m.electionsErr
	}
	return clonePositions(m.elections), nil
}

// GetResults returns the configured results or error
func (m *MockClient) GetResults(ctx context.Context, electionID string) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resultsErr != nil {
		return nil, m.resultsErr
	}
	positions, ok := m.results[electionID]
	if !ok {
		return nil, fmt.Errorf("election %s not found", electionID)
	}
	return clonePositions(positions), nil
}

// CastVotes records the call and returns the configured response or error
func (m *MockClient) CastVotes(ctx context.Context, userID string, votes []VotePayload, idempotencyKey string) (CastResponse, error) {
	m.mu.Lock()
	m.castCalls = append(m.castCalls, CastCall{
		UserID:         userID,
		Votes:          append([]VotePayload(nil), votes...),
		IdempotencyKey: idempotencyKey,
	})
	delay := m.castDelay
	var err error
	if len(m.castErrs) > 0 {
		err = m.castErrs[0]
		m.castErrs = m.castErrs[1:]
	} else {
		err = m.castErr
	}
	resp := m.castResponse
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return CastResponse{}, ctx.Err()
		case <-timer.C:
		}
	}

	if err != nil {
		return CastResponse{}, err
	}
	return resp, nil
}

// CastCalls returns the recorded CastVotes calls (for testing)
func (m *MockClient) CastCalls() []CastCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CastCall(nil), m.castCalls...)
}

// BallotCalls returns the member ids GetBallot was called with (for testing)
func (m *MockClient) BallotCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ballotCalls...)
}

// ElectionCalls returns how many times GetElections was called (for testing)
func (m *MockClient) ElectionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.electionCalls
}

func clonePositions(in []models.Position) []models.Position {
	if in == nil {
		return nil
	}
	out := make([]models.Position, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)
