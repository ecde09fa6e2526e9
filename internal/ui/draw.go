package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/LimpingNinja/maxtel/internal/nodes"
)

var (
	styleNormal   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	styleShade    = tcell.StyleDefault.Foreground(tcell.ColorTeal).Background(tcell.ColorBlack)
	styleBorder   = tcell.StyleDefault.Foreground(tcell.ColorTeal).Background(tcell.ColorBlack)
	styleTitle    = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack).Bold(true)
	styleBar      = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
	styleHeader   = tcell.StyleDefault.Foreground(tcell.ColorTeal).Background(tcell.ColorBlack)
	styleLabel    = tcell.StyleDefault.Foreground(tcell.ColorRed).Background(tcell.ColorBlack)
	styleValue    = tcell.StyleDefault.Foreground(tcell.ColorYellow).Background(tcell.ColorBlack)
	styleGreenVal = tcell.StyleDefault.Foreground(tcell.ColorGreen).Background(tcell.ColorBlack)
	styleWFC      = tcell.StyleDefault.Foreground(tcell.ColorGreen).Background(tcell.ColorBlack)
	styleOnline   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Background(tcell.ColorBlack)
	styleDown     = tcell.StyleDefault.Foreground(tcell.ColorRed).Background(tcell.ColorBlack)
	styleCaller   = tcell.StyleDefault.Foreground(tcell.ColorPurple).Background(tcell.ColorBlack)

	lightbarNormal = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
	lightbarGood   = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGreen)
	lightbarBusy   = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow)
	lightbarBad    = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorRed)
)

func stateStyles(s nodes.State) (text, lightbar tcell.Style) {
	switch s {
	case nodes.StateWFC:
		return styleWFC, lightbarGood
	case nodes.StateConnected, nodes.StateStarting:
		return styleOnline, lightbarBusy
	case nodes.StateInactive, nodes.StateStopping, nodes.StateFailed:
		return styleDown, lightbarBad
	default:
		return styleNormal, lightbarNormal
	}
}

func (t *Tui) draw() {
	s := t.screen
	w, h := s.Size()
	t.layout = detectLayout(w)
	s.Clear()

	// Checkerboard backdrop between the panels.
	for y := 1; y < h-1; y++ {
		for x := 0; x < w; x++ {
			s.SetContent(x, y, tcell.RuneCkBoard, nil, styleShade)
		}
	}

	// Header bar.
	drawLine(s, 0, 0, w, "", styleBar)
	drawText(s, 2, 0, "MAXTEL v2.0", styleBar)
	centerText(s, 0, w, "Maximus Telnet Supervisor", styleBar)
	drawText(s, w-12, 0, fmt.Sprintf("Port: %d", t.frame.Port), styleBar)

	topH := 9
	userW := 30
	if userW > w/2 {
		userW = w / 2
	}
	sysX := userW + 2
	sysW := w - userW - 3

	t.drawPanel(1, 2, userW, topH, " User Stats ")
	t.drawUserStats(3, 3, userW-4)

	t.drawPanel(sysX, 2, sysW, topH, "")
	if t.layout == layoutCompact {
		t.drawSystemTabs(sysX, 2, sysW, topH)
	} else {
		half := (sysW - 2) / 2
		drawText(s, sysX+2, 2, " System ", styleTitle)
		t.drawSystemInfo(3, sysX+2, half-2)
		for y := 3; y < 2+topH-1; y++ {
			s.SetContent(sysX+half, y, tcell.RuneVLine, nil, styleBorder)
		}
		drawText(s, sysX+half+2, 2, " Stats ", styleTitle)
		t.drawSystemStats(3, sysX+half+2, half-2)
	}

	bottomY := 2 + topH + 1
	bottomH := h - bottomY - 2
	if bottomH < 6 {
		bottomH = 6
	}
	callersW := 30
	if t.layout != layoutCompact {
		callersW = 48
	}
	nodesW := w - callersW - 3

	t.drawNodes(1, bottomY, nodesW, bottomH)
	t.drawCallers(nodesW+2, bottomY, callersW, bottomH)

	// Status bar with the key legend.
	drawLine(s, 0, h-1, w, "", styleBar)
	legend := fmt.Sprintf("1-%d:Node  K:Kick  R:Restart  S:Snoop  C:Config  Q:Quit", len(t.frame.Rows))
	if t.layout == layoutCompact {
		legend = fmt.Sprintf("1-%d:Node  K:Kick  R:Restart  Tab:System  C:Config  Q:Quit", len(t.frame.Rows))
	}
	drawText(s, 1, h-1, legend, styleBar)
	drawText(s, w-16, h-1, fmt.Sprintf("Node %d", t.selected+1), styleBar)

	t.drawPopup()

	s.Show()
}

// drawPanel blanks a rectangle and frames it.
func (t *Tui) drawPanel(x, y, w, h int, title string) {
	s := t.screen
	for row := y + 1; row < y+h-1; row++ {
		for col := x + 1; col < x+w-1; col++ {
			s.SetContent(col, row, ' ', nil, styleNormal)
		}
	}
	drawBox(s, x, y, w, h, styleBorder)
	if title != "" {
		drawText(s, x+2, y, title, styleTitle)
	}
}

func (t *Tui) drawUserStats(y, x, w int) {
	s := t.screen
	if !t.frame.UserValid {
		drawText(s, x, y+2, "(No user online)", styleHeader)
		return
	}
	u := t.frame.User
	kv := func(row int, label, val string) {
		drawText(s, x, y+row, label, styleLabel)
		drawText(s, x+8, y+row, clip(val, w-8), styleValue)
	}
	kv(0, "Name  : ", u.Name)
	kv(1, "City  : ", u.City)
	kv(2, "Calls : ", itoa(int(u.Times)))
	kv(4, "Msgs  : ", fmt.Sprintf("%d/%d", u.MsgsPosted, u.MsgsRead))
	kv(5, "Up/Dn : ", fmt.Sprintf("%dK/%dK", u.UpKB, u.DownKB))
	kv(6, "Files : ", fmt.Sprintf("%d/%d", u.FilesUp, u.FilesDown))
}

func (t *Tui) drawSystemTabs(x, y, w, h int) {
	s := t.screen
	names := []string{"Info", "Stats"}
	tx := x + 2
	for i, name := range names {
		st := styleHeader
		if i == t.tab {
			st = styleBar.Bold(true)
		}
		drawText(s, tx, y, " "+name+" ", st)
		tx += len(name) + 3
	}
	drawText(s, x+w-8, y, "<Tab>", styleHeader)

	if t.tab == 0 {
		t.drawSystemInfo(y+1, x+2, w-4)
	} else {
		t.drawSystemStats(y+1, x+2, w-4)
	}
}

func (t *Tui) drawSystemInfo(y, x, w int) {
	s := t.screen
	f := t.frame
	kv := func(row int, label, val string, st tcell.Style) {
		drawText(s, x, y+row, label, styleLabel)
		drawText(s, x+10, y+row, clip(val, w-10), st)
	}
	kv(0, "BBS     : ", orDash(f.Info.SystemName), styleGreenVal)
	kv(1, "Sysop   : ", orDash(f.Info.SysopName), styleGreenVal)
	kv(2, "FTN     : ", orDash(f.Info.FTNAddress), styleGreenVal)
	kv(3, "Time    : ", time.Now().Format("15:04:05"), styleValue)
	kv(4, "Nodes   : ", itoa(len(f.Rows)), styleValue)
	kv(5, "Online  : ", itoa(f.Online), styleOnline)
	kv(6, "Waiting : ", itoa(f.Waiting), styleWFC)
}

func (t *Tui) drawSystemStats(y, x, w int) {
	s := t.screen
	f := t.frame
	kv := func(row int, label, val string) {
		drawText(s, x, y+row, label, styleLabel)
		drawText(s, x+14, y+row, clip(val, w-14), styleValue)
	}
	kv(0, "Started     : ", f.StartTime.Format("15:04 02-Jan"))
	kv(1, "Uptime      : ", Uptime(f.StartTime, time.Now()))
	kv(2, "Peak Online : ", itoa(f.PeakOnline))
	kv(3, "Users       : ", itoa(f.UserCount))
	kv(4, "Messages    : ", itoa(int(f.Stats.MsgsWritten)))
	kv(5, "Downloads   : ", itoa(int(f.Stats.TotalDL)))
}

func (t *Tui) drawNodes(x, y, w, h int) {
	s := t.screen
	t.drawPanel(x, y, w, h, " Nodes ")

	full := t.layout == layoutFull
	if full {
		drawText(s, x+2, y+1, "Node  Status      User                 Activity              Time", styleHeader)
	} else {
		drawText(s, x+2, y+1, "Node  Status    User              Time", styleHeader)
	}

	maxVis := h - 4
	if maxVis < 2 {
		maxVis = 2
	}
	rows := t.frame.Rows
	vis := len(rows)
	if vis > maxVis {
		vis = maxVis
	}

	// Keep the selection visible.
	if t.selected >= len(rows) && len(rows) > 0 {
		t.selected = len(rows) - 1
	}
	if t.selected < t.scroll {
		t.scroll = t.selected
	}
	if t.selected >= t.scroll+vis {
		t.scroll = t.selected - vis + 1
	}
	if t.scroll < 0 {
		t.scroll = 0
	}
	if t.scroll > len(rows)-vis {
		t.scroll = len(rows) - vis
		if t.scroll < 0 {
			t.scroll = 0
		}
	}

	if len(rows) > maxVis {
		drawText(s, x+w-12, y, fmt.Sprintf(" %d-%d/%d ", t.scroll+1, t.scroll+vis, len(rows)), styleTitle)
	}

	for vi := 0; vi < vis; vi++ {
		i := t.scroll + vi
		row := rows[i]
		textStyle, lightbar := stateStyles(row.State)
		ry := y + 2 + vi

		var line string
		if full {
			line = fmt.Sprintf("%4d  %-10s  %-20s %-20s  %s",
				row.Num, row.State, clip(row.User, 20), clip(row.Activity, 20), row.Clock)
		} else {
			line = fmt.Sprintf("%4d  %-8s  %-16s  %s",
				row.Num, row.State, clip(row.User, 16), row.Clock)
		}

		if i == t.selected {
			drawLine(s, x+1, ry, w-2, " "+line, lightbar)
		} else {
			drawText(s, x+2, ry, fmt.Sprintf("%4d  ", row.Num), styleNormal)
			if full {
				drawText(s, x+8, ry, fmt.Sprintf("%-10s", row.State), textStyle)
				drawText(s, x+20, ry, fmt.Sprintf("%-20s %-20s  %s",
					clip(row.User, 20), clip(row.Activity, 20), row.Clock), styleNormal)
			} else {
				drawText(s, x+8, ry, fmt.Sprintf("%-8s", row.State), textStyle)
				drawText(s, x+18, ry, fmt.Sprintf("%-16s  %s", clip(row.User, 16), row.Clock), styleNormal)
			}
		}
	}
}

func (t *Tui) drawCallers(x, y, w, h int) {
	s := t.screen
	avail := h - 4
	if avail < 1 {
		avail = 1
	}
	t.drawPanel(x, y, w, h, fmt.Sprintf(" Callers (Last %d) ", avail))
	drawText(s, x+2, y+h-1, fmt.Sprintf(" Today: %d ", t.frame.Stats.TodayCallers), styleHeader)

	showTime := w >= 44
	showCity := w >= 56
	switch {
	case showCity:
		drawText(s, x+2, y+1, "Node Calls Name               Date/Time      City", styleHeader)
	case showTime:
		drawText(s, x+2, y+1, "Node Calls Name               Date/Time", styleHeader)
	default:
		drawText(s, x+2, y+1, "Node Calls Name", styleHeader)
	}

	row := 0
	for _, c := range t.frame.Callers {
		if !c.Logon() || row >= avail {
			continue
		}
		ry := y + 2 + row
		drawText(s, x+2, ry, fmt.Sprintf("%-4d", c.Task), styleCaller)
		drawText(s, x+7, ry, fmt.Sprintf("%-5d", c.Calls), styleDown)
		if showTime {
			drawText(s, x+13, ry, fmt.Sprintf("%-18s", clip(c.Name, 18)), styleGreenVal)
			drawText(s, x+32, ry, c.Login.Short(), styleValue)
			if showCity {
				drawText(s, x+47, ry, clip(c.City, w-49), styleHeader)
			}
		} else {
			drawText(s, x+13, ry, clip(c.Name, 14), styleGreenVal)
		}
		row++
	}
	if row == 0 {
		drawText(s, x+2, y+2, "(No callers)", styleHeader)
	}
}

func (t *Tui) drawPopup() {
	if t.popup == nil {
		return
	}
	remaining := int(time.Until(t.popup.dismissAt).Seconds())
	if remaining <= 0 {
		t.popup = nil
		return
	}

	s := t.screen
	sw, sh := s.Size()
	w := sw - 8
	if w > 76 {
		w = 76
	}
	if w < 30 {
		w = 30
	}
	h := 9
	x := (sw - w) / 2
	y := (sh - h) / 2

	for row := y; row < y+h; row++ {
		drawLine(s, x, row, w, "", styleNormal)
	}
	drawBox(s, x, y, w, h, styleBorder)
	drawLine(s, x, y, w, "", styleBar)
	drawText(s, x+2, y, t.popup.title, styleBar)

	row := y + 2
	for _, ln := range splitLines(t.popup.body, w-4) {
		if row >= y+h-3 {
			break
		}
		drawText(s, x+2, row, ln, styleNormal)
		row++
	}
	drawText(s, x+2, y+h-2, fmt.Sprintf("Press any key or wait %2ds...", remaining), styleHeader)
}

// ---------- primitives ----------

func drawText(s tcell.Screen, x, y int, text string, st tcell.Style) {
	w, _ := s.Size()
	for _, r := range text {
		if x >= w {
			return
		}
		s.SetContent(x, y, r, nil, st)
		x++
	}
}

func drawLine(s tcell.Screen, x, y, w int, text string, st tcell.Style) {
	for i := 0; i < w; i++ {
		s.SetContent(x+i, y, ' ', nil, st)
	}
	drawText(s, x, y, clip(text, w), st)
}

func centerText(s tcell.Screen, y, w int, text string, st tcell.Style) {
	x := (w - len(text)) / 2
	if x < 0 {
		x = 0
	}
	drawText(s, x, y, text, st)
}

func drawBox(s tcell.Screen, x, y, w, h int, st tcell.Style) {
	for i := x + 1; i < x+w-1; i++ {
		s.SetContent(i, y, tcell.RuneHLine, nil, st)
		s.SetContent(i, y+h-1, tcell.RuneHLine, nil, st)
	}
	for i := y + 1; i < y+h-1; i++ {
		s.SetContent(x, i, tcell.RuneVLine, nil, st)
		s.SetContent(x+w-1, i, tcell.RuneVLine, nil, st)
	}
	s.SetContent(x, y, tcell.RuneULCorner, nil, st)
	s.SetContent(x+w-1, y, tcell.RuneURCorner, nil, st)
	s.SetContent(x, y+h-1, tcell.RuneLLCorner, nil, st)
	s.SetContent(x+w-1, y+h-1, tcell.RuneLRCorner, nil, st)
}

func clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	out := make([]rune, 0, max)
	for _, r := range s {
		if len(out) >= max {
			break
		}
		out = append(out, r)
	}
	return string(out)
}

func splitLines(s string, width int) []string {
	var out []string
	for _, raw := range splitOn(s, '\n') {
		for len(raw) > width && width > 0 {
			out = append(out, raw[:width])
			raw = raw[width:]
		}
		out = append(out, raw)
	}
	return out
}

func splitOn(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
