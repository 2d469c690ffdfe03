package extraction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loresmith/loresmith/pkg/config"
)

// scriptedSearch returns canned responses per call.
type scriptedSearch struct {
	calls     int
	responses []func() ([]SearchResult, error)
}

func (s *scriptedSearch) Search(_ context.Context, _ SearchRequest) ([]SearchResult, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.responses) {
		return s.responses[s.calls]()
	}
	return nil, nil
}

// newRetryExecutor builds an executor with just enough wiring to exercise
// searchWithRetries, recording every sleep instead of waiting.
func newRetryExecutor(search SearchClient, slept *[]time.Duration) *Executor {
	e := &Executor{
		search:    search,
		cfg:       config.DefaultExtractionConfig(),
		searchCfg: config.DefaultAISearchConfig(),
	}
	e.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return e
}

func TestSearchWithRetries_TimeoutSchedule(t *testing.T) {
	var slept []time.Duration
	search := &scriptedSearch{responses: []func() ([]SearchResult, error){
		func() ([]SearchResult, error) { return nil, fmt.Errorf("%w: dial", ErrSearchTimeout) },
		func() ([]SearchResult, error) { return nil, fmt.Errorf("%w: dial", ErrSearchTimeout) },
		func() ([]SearchResult, error) { return []SearchResult{{Text: "{}"}}, nil },
	}}
	e := newRetryExecutor(search, &slept)

	results, err := e.searchWithRetries(context.Background(), SearchRequest{MaxResults: 5})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, slept)
}

func TestSearchWithRetries_CapacitySchedule(t *testing.T) {
	var slept []time.Duration
	fail := func() ([]SearchResult, error) { return nil, fmt.Errorf("%w: 529", ErrSearchCapacity) }
	search := &scriptedSearch{responses: []func() ([]SearchResult, error){fail, fail, fail, fail}}
	e := newRetryExecutor(search, &slept)

	_, err := e.searchWithRetries(context.Background(), SearchRequest{MaxResults: 5})
	require.Error(t, err)

	// All three capacity delays consumed, then the task-level transient.
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}, slept)
	te := classify(err)
	assert.Equal(t, classTransient, te.class)
}

func TestSearchWithRetries_RateLimitSurfacesImmediately(t *testing.T) {
	var slept []time.Duration
	search := &scriptedSearch{responses: []func() ([]SearchResult, error){
		func() ([]SearchResult, error) {
			return nil, fmt.Errorf("%w: retry after 42s", ErrSearchRateLimited)
		},
	}}
	e := newRetryExecutor(search, &slept)

	_, err := e.searchWithRetries(context.Background(), SearchRequest{MaxResults: 5})
	require.Error(t, err)
	assert.Empty(t, slept)

	te := classify(err)
	assert.Equal(t, classRateLimited, te.class)
	assert.Equal(t, 42*time.Second, te.RetryAfter)
}

func TestSearchWithRetries_PermanentNoRetry(t *testing.T) {
	var slept []time.Duration
	search := &scriptedSearch{responses: []func() ([]SearchResult, error){
		func() ([]SearchResult, error) { return nil, fmt.Errorf("%w: status 400", ErrSearchPermanent) },
	}}
	e := newRetryExecutor(search, &slept)

	_, err := e.searchWithRetries(context.Background(), SearchRequest{MaxResults: 5})
	require.Error(t, err)
	assert.Empty(t, slept)
	assert.Equal(t, classPermanent, classify(err).class)
	assert.Equal(t, 1, search.calls)
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	te := classify(errors.New("connection reset by peer"))
	assert.Equal(t, classTransient, te.class)
}

func TestParseResultsMergesAndCollectsIssues(t *testing.T) {
	e := &Executor{}
	merged, issues := e.parseResults([]SearchResult{
		{Text: `{"monster":[{"name":"Goblin"}]}`},
		{Text: `{"monster":[{"name":"Ogre"}],"bogus":[{"name":"x"}]}`},
		{Text: `not even json`},
	})

	assert.Len(t, merged.Items["monster"], 2)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "unknown content type")
	assert.Contains(t, issues[1], "result[2]")
}

func TestRetryAfterFromError(t *testing.T) {
	assert.Equal(t, 42*time.Second,
		retryAfterFromError(fmt.Errorf("%w: retry after 42s", ErrSearchRateLimited)))
	assert.Equal(t, 30*time.Second, retryAfterFromError(errors.New("429")))
}
