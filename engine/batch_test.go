package engine_test

import (
	"context"
	"testing"

	"github.com/corvid-labs/wireclient/engine"
)

func TestDoManyReturnsOneResultPerRequestInOrder(t *testing.T) {
	ctx, err := engine.New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Close()

	reqs := make([]*engine.Outbound, 10)
	for i := range reqs {
		// Deliberately unparseable so every request fails fast without
		// touching the network, keeping this test hermetic.
		reqs[i] = &engine.Outbound{Method: "GET", URL: "://bad"}
	}

	results := ctx.DoMany(context.Background(), reqs, 4)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d: Index = %d, want %d", i, r.Index, i)
		}
		if r.Err == nil {
			t.Errorf("result %d: expected an error for an unparseable URL", i)
		}
	}
}

func TestDoManyHandlesEmptyBatch(t *testing.T) {
	ctx, err := engine.New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Close()

	results := ctx.DoMany(context.Background(), nil, 4)
	if len(results) != 0 {
		t.Errorf("expected no results for an empty batch, got %d", len(results))
	}
}

func TestDoManyFallsBackToOneWorkerForNonPositiveConcurrency(t *testing.T) {
	ctx, err := engine.New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Close()

	reqs := []*engine.Outbound{
		{Method: "GET", URL: "://bad"},
		{Method: "GET", URL: "://also-bad"},
	}
	results := ctx.DoMany(context.Background(), reqs, 0)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
}
