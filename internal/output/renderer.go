package output

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/queue"
)

// Renderer drains the display queue into a destination.
type Renderer struct {
	display *queue.Bounded[models.DisplayRecord]
	dest    Destination
	log     *slog.Logger

	rendered atomic.Uint64
	failed   atomic.Uint64
}

func NewRenderer(display *queue.Bounded[models.DisplayRecord], dest Destination, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{
		display: display,
		dest:    dest,
		log:     log.With("component", "renderer"),
	}
}

// Run renders records until ctx is done, then renders whatever is still
// queued. Cancel ctx only once every producer of the display queue has
// stopped, or records they emit afterwards are never rendered.
func (r *Renderer) Run(ctx context.Context) error {
	for {
		rec, err := r.display.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.flush()
				return nil
			}
			return err
		}
		r.render(rec)
	}
}

func (r *Renderer) flush() {
	for {
		rec, ok := r.display.TryGet()
		if !ok {
			return
		}
		r.render(rec)
	}
}

func (r *Renderer) render(rec models.DisplayRecord) {
	if err := r.dest.Write(rec); err != nil {
		r.failed.Add(1)
		r.log.Error("failed to render display record", "detection", rec.DetectionID, "error", err)
		return
	}
	r.rendered.Add(1)
}

// Rendered returns how many records were written and how many failed.
func (r *Renderer) Rendered() (ok, failed uint64) {
	return r.rendered.Load(), r.failed.Load()
}
