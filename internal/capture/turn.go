package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jackzampolin/pagecap/internal/jobs"
)

// Direction is the reading direction; it decides which side turns forward.
type Direction string

const (
	// RTL turns forward with the left side (right-to-left books).
	RTL Direction = "rtl"
	// LTR turns forward with the right side.
	LTR Direction = "ltr"
)

// ParseDirection maps a config value to a Direction. Unknown values are rejected.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case RTL, "":
		return RTL, nil
	case LTR:
		return LTR, nil
	}
	return "", fmt.Errorf("unknown page direction %q (want rtl or ltr)", s)
}

// DefaultSelectors returns the reader's page-turn hit areas for d, in the
// order they are tried.
func DefaultSelectors(d Direction) []string {
	if d == LTR {
		return []string{
			"#KindleReader_PageTurnArea_Right",
			".page-turn-area-right",
			"#kindleReader_pageTurnAreaRight",
		}
	}
	return []string{
		"#KindleReader_PageTurnArea_Left",
		".page-turn-area-left",
		"#kindleReader_pageTurnAreaLeft",
	}
}

// Key returns the arrow key that turns forward in d.
func (d Direction) Key() string {
	if d == LTR {
		return kb.ArrowRight
	}
	return kb.ArrowLeft
}

// KeyName is the human name of Key.
func (d Direction) KeyName() string {
	if d == LTR {
		return "ArrowRight"
	}
	return "ArrowLeft"
}

// ErrNoTurnTarget is returned when none of a turner's selectors is on the page.
var ErrNoTurnTarget = errors.New("no page-turn element found")

// SelectorTurner clicks the first selector present on the page.
type SelectorTurner struct {
	Browser   *Browser
	Selectors []string
	Label     string
}

// Turn implements jobs.PageTurner.
func (t *SelectorTurner) Turn(ctx context.Context) (string, error) {
	for _, sel := range t.Selectors {
		quoted, err := json.Marshal(sel)
		if err != nil {
			return "", err
		}
		js := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, quoted)

		var clicked bool
		if err := t.Browser.tab(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
			return "", fmt.Errorf("clicking %s: %w", sel, err)
		}
		if clicked {
			if t.Label != "" {
				return fmt.Sprintf("Clicked (%s) %s", t.Label, sel), nil
			}
			return "Clicked " + sel, nil
		}
	}
	return "", ErrNoTurnTarget
}

// KeyTurner sends a key press to the page.
type KeyTurner struct {
	Browser *Browser
	Key     string
	Name    string
}

// Turn implements jobs.PageTurner.
func (t *KeyTurner) Turn(ctx context.Context) (string, error) {
	if err := t.Browser.tab(ctx, chromedp.KeyEvent(t.Key)); err != nil {
		return "", fmt.Errorf("sending %s: %w", t.Name, err)
	}
	return fmt.Sprintf("Sent %s Keys", t.Name), nil
}

// ChainTurner tries each turner in order and stops at the first success.
type ChainTurner []jobs.PageTurner

// Turn implements jobs.PageTurner.
func (c ChainTurner) Turn(ctx context.Context) (string, error) {
	var errs []error
	for _, t := range c {
		how, err := t.Turn(ctx)
		if err == nil {
			return how, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", errors.New("no page-turn strategies configured")
	}
	return "", fmt.Errorf("page turn failed: %w", errors.Join(errs...))
}

// NewTurner returns the standard strategy chain for b: click the first
// present page-turn area for d, else press d's arrow key. An empty
// selectors list uses DefaultSelectors(d).
func NewTurner(b *Browser, d Direction, selectors []string) ChainTurner {
	if len(selectors) == 0 {
		selectors = DefaultSelectors(d)
	}
	label := "Left"
	if d == LTR {
		label = "Right"
	}
	return ChainTurner{
		&SelectorTurner{Browser: b, Selectors: selectors, Label: label},
		&KeyTurner{Browser: b, Key: d.Key(), Name: d.KeyName()},
	}
}
