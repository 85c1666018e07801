package dashboard

import (
	"fmt"
	"sync"
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeDark, ThemeLight:
		return Theme(s), nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// Style holds the theme-dependent chart colors sent alongside each view.
type Style struct {
	Text           string `json:"text"`
	Grid           string `json:"grid"`
	TooltipBG      string `json:"tooltip_background"`
	TooltipBorder  string `json:"tooltip_border"`
	GaugeFilled    string `json:"gauge_filled"`
	GaugeRemaining string `json:"gauge_remaining"`
}

func StyleFor(t Theme) Style {
	if t == ThemeLight {
		return Style{
			Text:           "#1f2937",
			Grid:           "rgba(0,0,0,0.08)",
			TooltipBG:      "rgba(255, 255, 255, 0.95)",
			TooltipBorder:  "rgba(45, 212, 191, 0.5)",
			GaugeFilled:    "#2dd4bf",
			GaugeRemaining: "#e5e7eb",
		}
	}
	return Style{
		Text:           "white",
		Grid:           "rgba(255,255,255,0.1)",
		TooltipBG:      "rgba(31, 41, 55, 0.95)",
		TooltipBorder:  "rgba(57, 255, 20, 0.5)",
		GaugeFilled:    "#39ff14",
		GaugeRemaining: "#333",
	}
}

// ThemeState is the current theme plus the callbacks interested in changes.
type ThemeState struct {
	mu        sync.Mutex
	current   Theme
	listeners []func(Theme)
}

func NewThemeState(initial Theme) *ThemeState {
	return &ThemeState{current: initial}
}

func (s *ThemeState) Current() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *ThemeState) Subscribe(fn func(Theme)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Set notifies subscribers only when the theme actually changes.
func (s *ThemeState) Set(t Theme) {
	s.mu.Lock()
	if s.current == t {
		s.mu.Unlock()
		return
	}
	s.current = t
	listeners := append([]func(Theme){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}
