package workflow

import "context"

// Archive persists finished runs for later inspection. The engine writes
// to it once per run, after the terminal transition.
type Archive interface {
	SaveResult(ctx context.Context, result Result) error
}

// NopArchive discards results. Used when no database is configured.
type NopArchive struct{}

func (NopArchive) SaveResult(context.Context, Result) error { return nil }
