package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
)

// Layout tiers, chosen from the terminal width like the classic full-screen
// BBS monitors: a tabbed compact view on 80 columns, expanded panels as the
// terminal grows.
type layoutMode int

const (
	layoutCompact layoutMode = iota // tabbed system panel, minimal columns
	layoutMedium                    // side-by-side system, caller date/time (no city column)
	layoutFull                      // all columns
)

func detectLayout(w int) layoutMode {
	switch {
	case w >= 132:
		return layoutFull
	case w >= 100:
		return layoutMedium
	default:
		return layoutCompact
	}
}

type popupState struct {
	title     string
	body      string
	dismissAt time.Time
}

// Tui is the tcell operator display.
type Tui struct {
	screen tcell.Screen

	cmds   chan Command
	frames chan Frame
	popups chan popupState
	ctl    chan ctlMsg
	done   chan struct{}

	// presentation state, owned by the run loop
	frame    Frame
	selected int
	scroll   int
	tab      int // 0 = info, 1 = stats
	layout   layoutMode
	popup    *popupState
}

type ctlMsg struct {
	suspend bool
	reply   chan error
}

// NewTui initializes the screen. When sizeSpec is non-empty it asks the
// terminal to resize first via the xterm window-ops sequence.
func NewTui(sizeSpec string) (*Tui, error) {
	if sizeSpec != "" {
		requestTerminalSize(sizeSpec)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.HideCursor()

	t := &Tui{
		screen: screen,
		cmds:   make(chan Command, 8),
		frames: make(chan Frame, 1),
		popups: make(chan popupState, 4),
		ctl:    make(chan ctlMsg),
		done:   make(chan struct{}),
	}
	go t.run()
	return t, nil
}

// requestTerminalSize emits the xterm resize sequence before the screen is
// initialized, so tcell picks up the new geometry.
func requestTerminalSize(spec string) {
	var cols, rows int
	if n, _ := fmt.Sscanf(spec, "%dx%d", &cols, &rows); n == 2 && cols > 0 && rows > 0 {
		fmt.Printf("\x1b[8;%d;%dt", rows, cols)
		time.Sleep(100 * time.Millisecond)
	}
}

func (t *Tui) Commands() <-chan Command { return t.cmds }

func (t *Tui) Render(f Frame) {
	// Keep only the freshest frame; rendering lag must not back up the
	// supervisor tick.
	select {
	case t.frames <- f:
	default:
		select {
		case <-t.frames:
		default:
		}
		select {
		case t.frames <- f:
		default:
		}
	}
}

func (t *Tui) PostPopup(title, body string) {
	select {
	case t.popups <- popupState{title: title, body: body}:
	default:
	}
}

func (t *Tui) Suspend() error { return t.control(true) }
func (t *Tui) Resume() error  { return t.control(false) }

func (t *Tui) control(suspend bool) error {
	reply := make(chan error, 1)
	select {
	case t.ctl <- ctlMsg{suspend: suspend, reply: reply}:
		return <-reply
	case <-t.done:
		return nil
	}
}

func (t *Tui) Close() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.screen.Fini()
}

// run owns all presentation state. tcell events arrive via a sibling
// goroutine so the loop can also react to frames and control messages.
func (t *Tui) run() {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-t.done:
				return
			}
		}
	}()

	suspended := false
	for {
		select {
		case <-t.done:
			return
		case msg := <-t.ctl:
			if msg.suspend && !suspended {
				msg.reply <- t.screen.Suspend()
				suspended = true
			} else if !msg.suspend && suspended {
				err := t.screen.Resume()
				suspended = false
				t.draw()
				msg.reply <- err
			} else {
				msg.reply <- nil
			}
		case f := <-t.frames:
			t.frame = f
			if !suspended {
				t.draw()
			}
		case p := <-t.popups:
			p.dismissAt = time.Now().Add(popupTimeout)
			t.popup = &p
			if !suspended {
				t.draw()
			}
		case ev := <-events:
			if suspended {
				continue
			}
			if t.handleEvent(ev) {
				t.draw()
			}
		}
	}
}

func (t *Tui) handleEvent(ev tcell.Event) bool {
	switch e := ev.(type) {
	case *tcell.EventResize:
		t.screen.Sync()
		return true
	case *tcell.EventKey:
		return t.handleKey(e)
	}
	return false
}

func (t *Tui) handleKey(e *tcell.EventKey) bool {
	// Any key dismisses an active popup first.
	if t.popup != nil {
		t.popup = nil
		return true
	}

	nrows := len(t.frame.Rows)
	if e.Key() == tcell.KeyRune {
		r := e.Rune()
		if r >= '1' && r <= '9' {
			if n := int(r - '1'); n < nrows {
				t.selected = n
			}
			return true
		}
		switch r {
		case 'q', 'Q':
			t.send(Command{Kind: CmdQuit, Node: -1})
		case 'k', 'K':
			t.send(Command{Kind: CmdKill, Node: t.selected})
		case 'r', 'R':
			t.send(Command{Kind: CmdRestart, Node: t.selected})
		case 's', 'S':
			t.send(Command{Kind: CmdSnoop, Node: t.selected})
		case 'c', 'C':
			t.send(Command{Kind: CmdConfig, Node: -1})
		}
		return false
	}

	switch e.Key() {
	case tcell.KeyUp:
		if t.selected > 0 {
			t.selected--
		}
		return true
	case tcell.KeyDown:
		if t.selected < nrows-1 {
			t.selected++
		}
		return true
	case tcell.KeyTab, tcell.KeyLeft, tcell.KeyRight:
		if t.layout == layoutCompact {
			t.tab = (t.tab + 1) % 2
			return true
		}
	}
	return false
}

func (t *Tui) send(c Command) {
	select {
	case t.cmds <- c:
	default:
	}
}
