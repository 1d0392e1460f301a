package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/njoerd114/availsync/internal/model"
)

var (
	// ErrWizardClosed is returned by wizard operations while it is closed.
	ErrWizardClosed = errors.New("bulk edit wizard is not open")

	// ErrInvalidStep is returned for a transition the current step does not
	// allow.
	ErrInvalidStep = errors.New("invalid bulk edit step")
)

// BulkEditor is the bulk edit wizard: scope, then actions, then confirm.
// Its state lives only in memory and is discarded on cancel or on a
// successful commit.
type BulkEditor struct {
	api        ChannelManager
	fetcher    *Fetcher
	pending    *PendingTracker
	propertyID int64
	log        *slog.Logger

	mu    sync.Mutex
	state model.BulkEditState
}

// NewBulkEditor creates a closed wizard.
func NewBulkEditor(api ChannelManager, f *Fetcher, p *PendingTracker, propertyID int64, logger *slog.Logger) *BulkEditor {
	return &BulkEditor{api: api, fetcher: f, pending: p, propertyID: propertyID, log: logger}
}

// Open starts a wizard session at step 1. The scope is seeded from the
// visible window and selected, or every room of the current snapshot when
// nothing is selected.
func (b *BulkEditor) Open(selected []int64) model.BulkEditState {
	w := b.fetcher.Window()
	rooms := slices.Clone(selected)
	if len(rooms) == 0 {
		rooms = b.fetcher.Snapshot().RoomIDs()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = model.BulkEditState{
		IsOpen: true,
		Step:   model.StepScope,
		Scope:  model.BulkScope{From: w.From, To: w.To, RoomIDs: rooms},
	}
	return b.copyState()
}

// SetScope replaces the scope. Only allowed at step 1.
func (b *BulkEditor) SetScope(s model.BulkScope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireStep(model.StepScope); err != nil {
		return err
	}
	s.RoomIDs = slices.Clone(s.RoomIDs)
	b.state.Scope = s
	b.state.Error = ""
	return nil
}

// SetActions replaces the actions. Only allowed at step 2.
func (b *BulkEditor) SetActions(a model.BulkActions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireStep(model.StepActions); err != nil {
		return err
	}
	b.state.Actions = a
	b.state.Error = ""
	return nil
}

// Next advances one step. Leaving step 1 validates the scope, leaving step 2
// validates the actions.
func (b *BulkEditor) Next() (model.BulkStep, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.IsOpen {
		return 0, ErrWizardClosed
	}

	switch b.state.Step {
	case model.StepScope:
		if err := b.state.Scope.Validate(); err != nil {
			b.state.Error = err.Error()
			return b.state.Step, err
		}
	case model.StepActions:
		if _, err := model.BuildBulkPayload(b.propertyID, b.state.Scope, b.state.Actions); err != nil {
			b.state.Error = err.Error()
			return b.state.Step, err
		}
	default:
		return b.state.Step, fmt.Errorf("next from %s: %w", b.state.Step, ErrInvalidStep)
	}
	b.state.Step++
	b.state.Error = ""
	return b.state.Step, nil
}

// Back returns to the previous step.
func (b *BulkEditor) Back() (model.BulkStep, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.IsOpen {
		return 0, ErrWizardClosed
	}
	if b.state.Step <= model.StepScope {
		return b.state.Step, fmt.Errorf("back from %s: %w", b.state.Step, ErrInvalidStep)
	}
	b.state.Step--
	b.state.Error = ""
	return b.state.Step, nil
}

// Cancel closes the wizard and discards its state.
func (b *BulkEditor) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = model.BulkEditState{}
}

// State returns a copy of the wizard state.
func (b *BulkEditor) State() model.BulkEditState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyState()
}

// Preview returns the payload the confirm step would submit.
func (b *BulkEditor) Preview() (model.BulkPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.IsOpen {
		return model.BulkPayload{}, ErrWizardClosed
	}
	return model.BuildBulkPayload(b.propertyID, b.state.Scope, b.state.Actions)
}

// Execute commits the wizard from step 3 as a single bulk request. An
// invalid scope is rejected before anything is sent.
//
// On success the pending count is refreshed, the wizard closes and the
// snapshot is re-fetched in full. On failure the wizard stays open with the
// error recorded and nothing local changes.
func (b *BulkEditor) Execute(ctx context.Context) (int, error) {
	b.mu.Lock()
	if err := b.requireStep(model.StepConfirm); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	payload, err := model.BuildBulkPayload(b.propertyID, b.state.Scope, b.state.Actions)
	if err != nil {
		b.state.Error = err.Error()
		b.mu.Unlock()
		return 0, fmt.Errorf("building bulk payload: %w", err)
	}
	b.mu.Unlock()

	updated, err := b.api.BulkUpdate(ctx, payload)
	if err != nil {
		b.mu.Lock()
		b.state.Error = err.Error()
		b.mu.Unlock()
		b.log.Warn("bulk update rejected", "rooms", len(payload.RoomIDs), "cells", payload.Cells, "error", err)
		return 0, fmt.Errorf("submitting bulk update: %w", err)
	}

	b.log.Info("bulk update accepted",
		"rooms", len(payload.RoomIDs),
		"from", payload.DateFrom.String(),
		"to", payload.DateTo.String(),
		"cells", payload.Cells,
		"updated", updated,
	)

	if _, err := b.pending.RefreshCount(ctx); err != nil {
		b.log.Warn("refreshing pending count after bulk update", "error", err)
	}
	b.Cancel()
	if _, err := b.fetcher.Fetch(ctx, FetchOptions{Force: true, ShowLoading: true}); err != nil && !errors.Is(err, ErrSuperseded) {
		b.log.Warn("re-fetching after bulk update", "error", err)
	}
	return updated, nil
}

func (b *BulkEditor) requireStep(step model.BulkStep) error {
	if !b.state.IsOpen {
		return ErrWizardClosed
	}
	if b.state.Step != step {
		return fmt.Errorf("at %s, need %s: %w", b.state.Step, step, ErrInvalidStep)
	}
	return nil
}

func (b *BulkEditor) copyState() model.BulkEditState {
	st := b.state
	st.Scope.RoomIDs = slices.Clone(st.Scope.RoomIDs)
	return st
}
