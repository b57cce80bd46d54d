package mapview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"allergen-map/internal/catalog"
	"allergen-map/internal/common"
	"allergen-map/internal/logging"
	"allergen-map/internal/metrics"
)

// ErrClosed is returned by Select after Close
var ErrClosed = errors.New("mapview: controller closed")

// Controller owns one session's selection. Only the latest selection's render may
// update the view: a newer Select cancels the older pipeline run and discards its result.
type Controller struct {
	catalog  *catalog.Catalog
	pipeline Pipeline
	metrics  *metrics.Metrics
	logger   *log.Logger

	mu       sync.Mutex
	view     View
	revision uint64
	cancel   context.CancelFunc
	onChange func(View)
	closed   bool
}

// NewController creates an Idle controller
func NewController(cat *catalog.Catalog, pipeline Pipeline, m *metrics.Metrics, logger *log.Logger) *Controller {
	return &Controller{
		catalog:  cat,
		pipeline: pipeline,
		metrics:  m,
		logger:   logging.Component(logger, "mapview"),
		view:     idleView(0),
	}
}

// OnChange registers fn to receive every new view. fn runs with the controller
// locked, in revision order, and must not call back into the controller.
func (c *Controller) OnChange(fn func(View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// View returns the current snapshot
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Selection returns the selected key, or catalog.None when idle.
// A selection whose render is still pending counts as selected.
func (c *Controller) Selection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.State != StateDisplaying {
		return catalog.None
	}
	return c.view.Key
}

// Select changes the selection to input, a display label or a selection key.
// The empty string or "none" clears it. Select blocks until the render finishes and
// returns the resulting view. Unknown input and pipeline failures leave the view Idle
// with a warning and return the error. A result overtaken by a newer Select returns
// the newer view and common.ErrSuperseded.
func (c *Controller) Select(ctx context.Context, input string) (View, error) {
	input = strings.TrimSpace(input)
	if catalog.IsNone(input) {
		return c.clear()
	}

	key, ok := c.catalog.Resolve(input)
	if !ok {
		err := fmt.Errorf("unknown dataset %q: %w", input, common.ErrNotFound)
		return c.fail(input, err)
	}
	entry, err := c.catalog.Lookup(key)
	if err != nil {
		return c.fail(input, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrClosed
	}
	rev := c.supersedeLocked()
	// the render belongs to the selection, not to the caller
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.setLocked(displayingView(rev, entry.Key, entry.Label, nil))
	c.mu.Unlock()

	c.logger.Info("dataset selected", "dataset", entry.Key, "revision", rev)
	res, err := c.pipeline.Render(runCtx, entry)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if rev != c.revision {
		c.logger.Debug("discarding stale render", "dataset", entry.Key, "revision", rev, "current", c.revision)
		return c.view, fmt.Errorf("render of %s (revision %d): %w", entry.Key, rev, common.ErrSuperseded)
	}
	c.cancel = nil

	if err != nil {
		c.metrics.IncSelection(common.KindOf(err))
		c.logger.Warn("render failed", "dataset", entry.Key, "kind", common.KindOf(err), "err", err)
		v := idleView(rev)
		v.Warning = fmt.Sprintf("%s could not be displayed: %v", entry.Label, err)
		v.WarningKind = common.KindOf(err)
		c.setLocked(v)
		return v, err
	}

	c.metrics.IncSelection(string(StateDisplaying))
	v := displayingView(rev, entry.Key, entry.Label, res)
	c.setLocked(v)
	return v, nil
}

// Close cancels any pending render. Later selections fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.supersedeLocked()
	c.view = idleView(c.revision)
	c.onChange = nil
}

func (c *Controller) clear() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrClosed
	}
	rev := c.supersedeLocked()
	v := idleView(rev)
	c.setLocked(v)
	c.metrics.IncSelection(string(StateIdle))
	return v, nil
}

func (c *Controller) fail(input string, err error) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrClosed
	}
	rev := c.supersedeLocked()
	v := idleView(rev)
	v.Warning = fmt.Sprintf("No dataset named %q, showing the base map only", input)
	v.WarningKind = common.KindOf(err)
	c.setLocked(v)
	c.metrics.IncSelection(v.WarningKind)
	c.logger.Warn("unknown selection", "input", input)
	return v, err
}

// supersedeLocked starts a new revision and cancels the pending render, if any
func (c *Controller) supersedeLocked() uint64 {
	c.revision++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return c.revision
}

func (c *Controller) setLocked(v View) {
	c.view = v
	if c.onChange != nil {
		c.onChange(v)
	}
}
