// Package echarts adapts a go-echarts line chart to the chartsync.Chart
// contract. The adapter keeps the live positional series array itself;
// go-echarts models are immutable once populated, so Redraw rebuilds the
// model from the current array and renders the page to the configured
// writer.
package echarts

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/zoobzio/chartsync"
)

// Chart renders a chartsync-managed series list as a go-echarts line
// chart. Not safe for concurrent mutation on its own; all mutation flows
// through one chartsync.Handle.
type Chart struct {
	mu sync.Mutex

	title   string
	theme   string
	out     io.Writer
	order   []string
	series  map[string]chartsync.Series
	loading bool
	closed  bool

	redraws int
}

// New creates an adapter that renders to out on every redraw.
func New(out io.Writer, title string) *Chart {
	theme := chartsync.CurrentDefaults().Theme
	if theme == "" {
		theme = types.ThemeWesteros
	}
	return &Chart{
		title:  title,
		theme:  theme,
		out:    out,
		series: make(map[string]chartsync.Series),
	}
}

// AddSeries appends a new series to the positional series array.
func (c *Chart) AddSeries(s chartsync.Series) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("chart closed")
	}
	if _, ok := c.series[s.ID]; ok {
		return fmt.Errorf("series %q already present", s.ID)
	}
	c.order = append(c.order, s.ID)
	c.series[s.ID] = s
	return nil
}

// UpdateSeries replaces an existing series in place, keeping its position.
func (c *Chart) UpdateSeries(s chartsync.Series) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("chart closed")
	}
	if _, ok := c.series[s.ID]; !ok {
		return fmt.Errorf("series %q not present", s.ID)
	}
	c.series[s.ID] = s
	return nil
}

// RemoveSeries removes the series with the given id.
func (c *Chart) RemoveSeries(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("chart closed")
	}
	if _, ok := c.series[id]; !ok {
		return fmt.Errorf("series %q not present", id)
	}
	delete(c.series, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Redraw rebuilds the go-echarts model from the current series array and
// renders it. Render failures are swallowed: the chart contract has no
// error channel for redraws, and a failed render must not disturb the
// reconciler's batch.
func (c *Chart) Redraw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.out == nil {
		return
	}
	c.redraws++

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: c.theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: c.title,
		}),
	)

	line.SetXAxis(c.xAxis())
	for _, id := range c.order {
		s := c.series[id]
		data := make([]opts.LineData, len(s.Points))
		for i, p := range s.Points {
			data[i] = opts.LineData{Value: p.Y}
		}
		line.AddSeries(id, data)
	}

	if err := line.Render(c.out); err != nil {
		return
	}
}

// xAxis derives category labels from the first series' X values. Called
// with the lock held.
func (c *Chart) xAxis() []string {
	if len(c.order) == 0 {
		return nil
	}
	first := c.series[c.order[0]]
	labels := make([]string, len(first.Points))
	for i, p := range first.Points {
		labels[i] = fmt.Sprint(p.X)
	}
	return labels
}

// ShowLoading renders the loading placeholder.
func (c *Chart) ShowLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.loading {
		return
	}
	c.loading = true
	if c.out != nil {
		text := chartsync.CurrentDefaults().LoadingText
		if text == "" {
			text = "Loading..."
		}
		fmt.Fprintf(c.out, "<div class=\"chart-loading\">%s</div>\n", text)
	}
}

// HideLoading clears the loading flag. The next redraw replaces the
// placeholder.
func (c *Chart) HideLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
}

// Loading reports whether the loading placeholder is active.
func (c *Chart) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Redraws reports how many redraws have been rendered.
func (c *Chart) Redraws() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redraws
}

// Close releases the chart. Further operations fail.
func (c *Chart) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Ensure Chart implements the chartsync contract.
var _ chartsync.Chart = (*Chart)(nil)
