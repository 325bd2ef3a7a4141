// Package tray shows the gesture pipeline in the system tray: a dispatch
// toggle, the pipeline state and the most recent gestures.
package tray

import (
	"fmt"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/pipeline"
)

// Handlers are invoked from the menu. Any of them may be nil.
type Handlers struct {
	// Toggle receives the new dispatch state.
	Toggle   func(enabled bool)
	Settings func()
	Quit     func()
}

// Tray mirrors pipeline state into the tray menu. It can be fed before Run
// and without a tray at all, in which case only its state changes.
type Tray struct {
	h Handlers

	mu       sync.Mutex
	enabled  bool
	status   string
	last     string
	commands int

	items map[string]*systray.MenuItem
}

const (
	itemToggle   = "toggle"
	itemStatus   = "status"
	itemGesture  = "gesture"
	itemCommands = "commands"
)

// New creates a Tray that shows dispatch as enabled.
func New(h Handlers) *Tray {
	return &Tray{
		h:       h,
		enabled: true,
		status:  statusLabel(pipeline.StateIdle, nil),
		last:    gestureLabel(nil),
		items:   make(map[string]*systray.MenuItem),
	}
}

// Run shows the tray and blocks until Quit. It must be called from the
// main goroutine on macOS.
func (t *Tray) Run() {
	systray.Run(t.build, func() {})
}

// Quit removes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) build() {
	systray.SetTitle("Handscene")
	systray.SetTooltip("Hand gestures to scene control")

	t.mu.Lock()
	t.items[itemToggle] = systray.AddMenuItem(toggleLabel(t.enabled), "Forward gestures to the scene")
	systray.AddSeparator()
	for _, it := range []struct{ key, title, tip string }{
		{itemStatus, t.status, "Pipeline state"},
		{itemGesture, t.last, "Last recognized gestures"},
		{itemCommands, commandsLabel(t.commands), "Commands sent this run"},
	} {
		mi := systray.AddMenuItem(it.title, it.tip)
		mi.Disable()
		t.items[it.key] = mi
	}
	toggle := t.items[itemToggle]
	t.mu.Unlock()

	systray.AddSeparator()
	settings := systray.AddMenuItem("Open Settings...", "Open the control page")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit Handscene")

	go func() {
		for {
			select {
			case <-toggle.ClickedCh:
				t.toggle()
			case <-settings.ClickedCh:
				call(t.h.Settings)
			case <-quit.ClickedCh:
				call(t.h.Quit)
				systray.Quit()
				return
			}
		}
	}()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func (t *Tray) toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.setTitle(itemToggle, toggleLabel(enabled))
	t.mu.Unlock()

	if t.h.Toggle != nil {
		t.h.Toggle(enabled)
	}
}

// setTitle updates a menu item once the tray is built. Callers hold mu.
func (t *Tray) setTitle(key, title string) {
	if mi := t.items[key]; mi != nil {
		mi.SetTitle(title)
	}
}

// SetEnabled syncs the toggle with the dispatcher without calling Toggle.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	t.setTitle(itemToggle, toggleLabel(enabled))
}

// Enabled reports the toggle state.
func (t *Tray) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetStatus shows the pipeline state. It has the signature of a
// pipeline.WatchState callback.
func (t *Tray) SetStatus(state pipeline.State, reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = statusLabel(state, reason)
	t.setTitle(itemStatus, t.status)
}

// ObserveTick records the gestures and commands of a processed tick.
func (t *Tray) ObserveTick(res pipeline.TickResult) {
	if len(res.Events) == 0 && len(res.Commands) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(res.Events) > 0 {
		t.last = gestureLabel(res.Events)
		t.setTitle(itemGesture, t.last)
	}
	if len(res.Commands) > 0 {
		t.commands += len(res.Commands)
		t.setTitle(itemCommands, commandsLabel(t.commands))
	}
}

func toggleLabel(enabled bool) string {
	if enabled {
		return "● Dispatch on"
	}
	return "○ Visualize only"
}

func statusLabel(state pipeline.State, reason error) string {
	if state != pipeline.StateDisabled {
		return "Status: " + state.String()
	}
	if reason == nil {
		return "⚠ Degraded"
	}
	return "⚠ Degraded: " + reason.Error()
}

func gestureLabel(events []model.GestureEvent) string {
	if len(events) == 0 {
		return "Last: none"
	}
	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = string(ev.Kind)
	}
	return "Last: " + strings.Join(kinds, ", ")
}

func commandsLabel(n int) string {
	return fmt.Sprintf("Commands sent: %d", n)
}
