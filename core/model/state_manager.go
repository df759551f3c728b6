package model

import (
	"sync"

	"github.com/YuminosukeSato/scigam/pkg/errors"
)

// StateManager manages the fitted state of a model in a thread-safe manner.
// Models compose it instead of embedding a base estimator.
type StateManager struct {
	mu        sync.RWMutex
	modelName string
	fitted    bool
	nFeatures int
	nSamples  int
}

// NewStateManager creates a StateManager for the named model. The name
// appears in NotFittedError messages.
func NewStateManager(modelName string) *StateManager {
	return &StateManager{modelName: modelName}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// MarkFitted records a successful fit together with the training shape.
func (s *StateManager) MarkFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// Reset returns the model to the unfitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.nFeatures = 0
	s.nSamples = 0
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted returns a NotFittedError naming method if the model has not been fitted.
func (s *StateManager) RequireFitted(method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(s.modelName, method)
	}
	return nil
}

// RequireFeatures checks that X has the number of columns seen during fitting.
func (s *StateManager) RequireFeatures(op string, got int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if got != s.nFeatures {
		return errors.NewDimensionError(op, s.nFeatures, got, 1)
	}
	return nil
}

// ModelState represents the fitted state for serialization and debugging.
type ModelState struct {
	Fitted    bool                   `json:"fitted"`
	NFeatures int                    `json:"n_features,omitempty"`
	NSamples  int                    `json:"n_samples,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		Fitted:    s.fitted,
		NFeatures: s.nFeatures,
		NSamples:  s.nSamples,
	}
}

// SetState restores the state, e.g. after ImportWeights.
func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = state.Fitted
	s.nFeatures = state.NFeatures
	s.nSamples = state.NSamples
}
