// Package guide produces the name → EPG id tables the matcher works against.
package guide

import (
	"context"
	"errors"

	"github.com/snapetech/iptvconstructor/internal/epglink"
)

// ErrNoTable means a source produced no usable entries.
var ErrNoTable = errors.New("guide: no channels found")

// Source produces a reference table, however obtained.
type Source interface {
	Table(ctx context.Context) (*epglink.Table, error)
}
