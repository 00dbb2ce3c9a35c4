// Package source discovers and loads registry source descriptors.
//
// A source is one remote registry endpoint. Each descriptor file in the
// sources directory contributes exactly one [Source]:
//
//	<name>.registry   one line holding the URL of a zipped core registry
//	<name>.extra      one line holding the URL of a plain JSON extra registry
//	<name>.toml       url = "...", kind = "core"|"extra", disabled = false
//
// Registration order (see [Discover]) defines priority: lower numbers win
// ties during catalog merging.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/mybget/pkg/state"
)

// Kind distinguishes the two registry schemas.
type Kind string

const (
	KindCore  Kind = "core"
	KindExtra Kind = "extra"
)

// Status is the outcome of the most recent update attempt for a source.
type Status string

const (
	StatusOK          Status = "ok"
	StatusStale       Status = "stale"
	StatusUnreachable Status = "unreachable"
)

// Source is one remote registry.
type Source struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Kind          Kind      `json:"kind"`
	Priority      int       `json:"priority"`
	LastETag      string    `json:"last_etag,omitempty"`
	LastFetchedAt time.Time `json:"last_fetched_at,omitzero"`
	Status        Status    `json:"status"`
	Path          string    `json:"path"`
	// Message describes the last failure, if any.
	Message string `json:"message,omitempty"`
	// LoadErr is set when the descriptor itself could not be read.
	LoadErr error `json:"-"`
}

// Usable reports whether the source can be fetched at all.
func (s Source) Usable() bool {
	return s.LoadErr == nil && s.URL != ""
}

func (s Source) String() string {
	return fmt.Sprintf("%s (%s, %s)", s.ID, s.Kind, s.URL)
}

// ETagKey is the state key holding the last ETag for a registry URL.
func ETagKey(url string) string { return state.PrefixETag + url }

// StateKey is the state key holding the persisted status of a source.
func StateKey(id string) string { return state.PrefixSource + id }

// persisted is the JSON document stored under [StateKey].
type persisted struct {
	LastFetchedAt time.Time `json:"last_fetched_at,omitzero"`
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
}

// ApplyState overlays the persisted ETag, fetch time and status onto
// sources. Sources that failed to load keep their unreachable status.
func ApplyState(ctx context.Context, sources []Source, st state.Store) error {
	for i := range sources {
		s := &sources[i]
		if !s.Usable() {
			continue
		}
		if etag, ok, err := st.Get(ctx, ETagKey(s.URL)); err != nil {
			return err
		} else if ok {
			s.LastETag = string(etag)
		}
		var p persisted
		ok, err := state.GetJSON(ctx, st, StateKey(s.ID), &p)
		if err != nil {
			return err
		}
		if ok {
			s.LastFetchedAt = p.LastFetchedAt
			s.Status = p.Status
			s.Message = p.Message
		}
	}
	return nil
}

// SaveState persists the fetch time, status and message of s.
func SaveState(ctx context.Context, st state.Store, s Source) error {
	return state.SetJSON(ctx, st, StateKey(s.ID), persisted{
		LastFetchedAt: s.LastFetchedAt,
		Status:        s.Status,
		Message:       s.Message,
	})
}
