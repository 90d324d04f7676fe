// Package session runs analyses for one caller: one request at a time,
// remembers the last request for Retry and owns the retry countdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/comesano/internal/ai"
	"github.com/local/comesano/internal/countdown"
	"github.com/local/comesano/internal/dispatcher"
	mpkg "github.com/local/comesano/internal/metrics"
	"github.com/local/comesano/internal/nutrition"
)

var (
	// ErrBusy is returned while another analysis of the same session runs.
	ErrBusy = errors.New("analysis already in progress")
	// ErrNoPreviousRequest is returned by Retry before any Analyze.
	ErrNoPreviousRequest = errors.New("no previous analysis to retry")
)

// CoolingDownError rejects a retry while the countdown is still running.
type CoolingDownError struct {
	Remaining int
}

func (e *CoolingDownError) Error() string {
	return fmt.Sprintf("retry available in %ds", e.Remaining)
}

type request struct {
	image       []byte
	instruction string
}

// Analyzer is safe for concurrent use but runs one inference at a time.
type Analyzer struct {
	mu        sync.Mutex
	client    dispatcher.Inferrer
	countdown *countdown.Controller
	last      *request
	busy      bool
}

// NewAnalyzer binds client and countdown; a nil countdown gets a real one.
func NewAnalyzer(client dispatcher.Inferrer, cd *countdown.Controller) *Analyzer {
	if cd == nil {
		cd = countdown.New()
	}
	return &Analyzer{client: client, countdown: cd}
}

// UpdateClient swaps the inference client, e.g. after credentials change.
func (a *Analyzer) UpdateClient(client dispatcher.Inferrer) {
	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
}

func (a *Analyzer) Countdown() countdown.Snapshot { return a.countdown.Snapshot() }

// Busy reports whether an analysis is running.
func (a *Analyzer) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// HasPrevious reports whether Retry has a request to replay.
func (a *Analyzer) HasPrevious() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last != nil
}

// Analyze cancels any countdown, remembers the request and runs it.
// A rate limit with a retry hint starts a new countdown.
func (a *Analyzer) Analyze(ctx context.Context, image []byte, instruction string) (nutrition.Result, error) {
	req := &request{image: append([]byte(nil), image...), instruction: instruction}
	client, err := a.begin(req)
	if err != nil {
		return nutrition.Result{}, err
	}
	return a.run(ctx, client, req)
}

// Retry replays the last request. It fails while a countdown is still counting.
func (a *Analyzer) Retry(ctx context.Context) (nutrition.Result, error) {
	a.mu.Lock()
	last := a.last
	a.mu.Unlock()
	if last == nil {
		return nutrition.Result{}, ErrNoPreviousRequest
	}
	if s := a.countdown.Snapshot(); s.State == countdown.Counting {
		return nutrition.Result{}, &CoolingDownError{Remaining: s.Remaining}
	}
	client, err := a.begin(last)
	if err != nil {
		return nutrition.Result{}, err
	}
	mpkg.IncRetry()
	return a.run(ctx, client, last)
}

// Close cancels the countdown for good.
func (a *Analyzer) Close() { a.countdown.Close() }

func (a *Analyzer) begin(req *request) (dispatcher.Inferrer, error) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		mpkg.IncAnalysis("busy")
		return nil, ErrBusy
	}
	a.busy = true
	a.last = req
	client := a.client
	a.mu.Unlock()

	a.countdown.Reset()
	return client, nil
}

func (a *Analyzer) run(ctx context.Context, client dispatcher.Inferrer, req *request) (nutrition.Result, error) {
	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	start := time.Now()
	result, err := client.InferNutrition(ctx, req.image, req.instruction)
	kind := ai.Kind(err)
	mpkg.IncAnalysis(kind)

	if err != nil {
		counting := false
		if ai.IsRateLimited(err) {
			counting = a.countdown.StartFromError(err)
		}
		log.Warn().
			Str("client", dispatcher.Describe(client)).
			Str("result", kind).
			Bool("countdown", counting).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("analysis failed")
		return nutrition.Result{}, err
	}

	mpkg.ObserveFoodItems(len(result.FoodItems))
	log.Info().
		Str("client", dispatcher.Describe(client)).
		Int("food_items", len(result.FoodItems)).
		Int("shopping_items", len(result.ShoppingList)).
		Dur("duration", time.Since(start)).
		Msg("analysis done")
	return result, nil
}
