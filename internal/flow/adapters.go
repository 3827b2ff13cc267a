// File: internal/flow/adapters.go
package flow

import (
	"context"
	"time"

	"github.com/weifanh/classsync-cli/internal/browser"
	"github.com/weifanh/classsync-cli/internal/fill"
	"github.com/weifanh/classsync-cli/internal/schedule"
)

// managerBrowser bridges *browser.Manager to the Browser interface so the
// flow can be tested against fakes.
type managerBrowser struct {
	m *browser.Manager
}

// NewManagerBrowser wraps a browser manager for use by the flow.
func NewManagerBrowser(m *browser.Manager) Browser {
	return managerBrowser{m: m}
}

func (b managerBrowser) OpenOrFocus(ctx context.Context, urlPrefix string) (Page, error) {
	p, err := b.m.OpenOrFocus(ctx, urlPrefix)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b managerBrowser) WaitForTarget(ctx context.Context, opener Page, urlPrefix string, timeout time.Duration) (Page, error) {
	op, _ := opener.(*browser.Page)
	p, err := b.m.WaitForTarget(ctx, op, urlPrefix, timeout)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// fillerAdapter narrows the flow's Page down to the evaluator surface the
// filler wants.
type fillerAdapter struct {
	f *fill.Filler
}

// NewFillerAdapter wraps a concrete filler for use by the flow.
func NewFillerAdapter(f *fill.Filler) FormFiller {
	return fillerAdapter{f: f}
}

func (a fillerAdapter) Fill(ctx context.Context, page Page, payload *schedule.WeekPayload) (*schedule.FillOutcome, error) {
	return a.f.Fill(ctx, page, payload)
}
