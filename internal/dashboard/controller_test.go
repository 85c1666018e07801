package dashboard

import (
	"sync"
	"testing"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

type recorder struct {
	frames []Frame
}

func (r *recorder) Render(f Frame) { r.frames = append(r.frames, f) }

func TestControllerRenderFansOut(t *testing.T) {
	c := NewController(NewThemeState(ThemeDark))
	a, b := &recorder{}, &recorder{}
	c.AddSink(a)
	c.AddSink(b)

	view := models.EmptyView()
	view.Heap = models.Gauge{Filled: 10, Remaining: 5}
	c.Render(view, nil)

	for i, r := range []*recorder{a, b} {
		if len(r.frames) != 1 {
			t.Fatalf("sink %d: expected 1 frame, got %d", i, len(r.frames))
		}
		if r.frames[0].View.Heap.Filled != 10 || r.frames[0].Theme != ThemeDark {
			t.Fatalf("sink %d: unexpected frame %+v", i, r.frames[0])
		}
	}
	last, ok := c.Last()
	if !ok || last.View.Heap.Filled != 10 {
		t.Fatalf("expected last frame to be stored, got %+v", last)
	}
}

func TestControllerThemeChangeRedrawsLastView(t *testing.T) {
	theme := NewThemeState(ThemeDark)
	c := NewController(theme)
	rec := &recorder{}
	c.AddSink(rec)

	view := models.EmptyView()
	view.Uptime = models.Gauge{Filled: 60, Remaining: 40}
	c.Render(view, nil)

	theme.Set(ThemeLight)
	if len(rec.frames) != 2 {
		t.Fatalf("expected redraw on theme change, got %d frames", len(rec.frames))
	}
	redraw := rec.frames[1]
	if redraw.Theme != ThemeLight || redraw.Style != StyleFor(ThemeLight) {
		t.Fatalf("unexpected redraw style %+v", redraw)
	}
	if redraw.View.Uptime.Filled != 60 {
		t.Fatalf("redraw should reuse the last view, got %+v", redraw.View)
	}

	theme.Set(ThemeLight)
	if len(rec.frames) != 2 {
		t.Fatalf("setting the same theme should not redraw")
	}
}

func TestControllerConcurrentRendersStayOrdered(t *testing.T) {
	theme := NewThemeState(ThemeDark)
	c := NewController(theme)
	rec := &recorder{}
	c.AddSink(rec)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				view := models.EmptyView()
				view.Heap = models.Gauge{Filled: int64(g*1000 + i)}
				c.Render(view, nil)
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if i%2 == 0 {
				theme.Set(ThemeLight)
			} else {
				theme.Set(ThemeDark)
			}
		}
	}()
	wg.Wait()

	last, ok := c.Last()
	if !ok {
		t.Fatalf("expected a frame")
	}
	if last.Theme != theme.Current() || last.Style != StyleFor(theme.Current()) {
		t.Fatalf("current frame has theme %s, state has %s", last.Theme, theme.Current())
	}
	sunk := rec.frames[len(rec.frames)-1]
	if sunk.Theme != last.Theme || sunk.View.Heap != last.View.Heap {
		t.Fatalf("sink ended on %+v, controller on %+v", sunk, last)
	}
}

func TestControllerNothingRenderedYet(t *testing.T) {
	c := NewController(NewThemeState(ThemeLight))
	last, ok := c.Last()
	if ok {
		t.Fatalf("expected no frame yet")
	}
	if last.View.Signal == nil || last.Style.Text != "#1f2937" {
		t.Fatalf("expected an empty view in the light style, got %+v", last)
	}
}

func TestParseTheme(t *testing.T) {
	if th, err := ParseTheme("dark"); err != nil || th != ThemeDark {
		t.Fatalf("expected dark, got %v %v", th, err)
	}
	if _, err := ParseTheme("neon"); err == nil {
		t.Fatalf("expected error for unknown theme")
	}
}
