package explorer

import (
	"fmt"
	"image"
	"image/color"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gdamore/tcell/v2"
)

const legend = "o open  a add  d delete  x extract  s save  m mkdir  r reload  space select  ^A all  q quit"

var (
	styleCursor   = tcell.StyleDefault.Reverse(true)
	styleSelected = tcell.StyleDefault.Bold(true)
	styleDir      = tcell.StyleDefault.Foreground(tcell.ColorAqua)
)

func putStr(s tcell.Screen, x, y int, str string) {
	putStyled(s, x, y, str, tcell.StyleDefault)
}

func putStyled(s tcell.Screen, x, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break // Don't write beyond screen width
		}
		s.SetContent(pos, y, r, nil, style)
	}
}

// listHeight is the number of tree rows that fit between the title and the
// status block.
func (u *UI) listHeight() int {
	_, h := u.s.Size()
	if h-4 < 1 {
		return 1
	}
	return h - 4
}

// previewWidth is the width in cells of the preview pane; each cell shows two
// pixels stacked vertically.
func (u *UI) previewWidth() int {
	w, _ := u.s.Size()
	pw := 2 * u.listHeight()
	if pw > w/2 {
		pw = w / 2
	}
	if pw > u.preview.Size() {
		pw = u.preview.Size()
	}
	return pw
}

// LayoutAndDraw redraws the entire UI with the current state.
func (u *UI) LayoutAndDraw() {
	u.s.Clear()
	w, h := u.s.Size()

	title := " badgetool "
	if u.sess != nil {
		title = fmt.Sprintf(" %s ", u.sess.Path())
		if u.sess.Dirty() {
			title = fmt.Sprintf(" %s [modified] ", u.sess.Path())
		}
	}
	putStr(u.s, 0, 0, strings.Repeat("═", w))
	putStr(u.s, (w-len([]rune(title)))/2, 0, title)

	pw := 0
	if u.frame != nil {
		pw = u.previewWidth()
	}
	u.drawTree(0, 1, w-pw-1, u.listHeight())
	if pw > 0 {
		u.drawPreview(w-pw, 1, pw)
	}

	putStr(u.s, 0, h-3, strings.Repeat("─", w))
	putStr(u.s, 2, h-3, " Status ")
	putStr(u.s, 0, h-2, u.status)
	if u.prompt != nil {
		line := u.prompt.label + ": " + string(u.prompt.input)
		if u.prompt.confirm {
			line = u.prompt.label + " "
		}
		putStr(u.s, 0, h-1, line)
		u.s.ShowCursor(len([]rune(line)), h-1)
	} else {
		putStr(u.s, 0, h-1, legend)
		u.s.HideCursor()
	}
	u.s.Show()
}

func (u *UI) drawTree(x, y, width, height int) {
	if u.sess == nil {
		putStr(u.s, x+1, y, "No image open.")
		return
	}
	if len(u.rows) == 0 {
		putStr(u.s, x+1, y, "(empty filesystem)")
		return
	}
	if u.cursor < u.top {
		u.top = u.cursor
	}
	if u.cursor >= u.top+height {
		u.top = u.cursor - height + 1
	}
	for i := 0; i < height && u.top+i < len(u.rows); i++ {
		idx := u.top + i
		r := u.rows[idx]
		mark := "[ ]"
		if u.selected[r.node.Path] {
			mark = "[x]"
		}
		name := path.Base(r.node.Path)
		size := ""
		if r.node.IsDir() {
			name += "/"
		} else {
			size = human(r.node.Size)
		}
		left := fmt.Sprintf("%s %s%s", mark, strings.Repeat("  ", r.depth), name)
		line := fmt.Sprintf("%-*s %7s", max(width-8, 0), left, size)
		if n := []rune(line); len(n) > width {
			line = string(n[:width])
		}

		style := tcell.StyleDefault
		switch {
		case idx == u.cursor:
			style = styleCursor
		case u.selected[r.node.Path]:
			style = styleSelected
		case r.node.IsDir():
			style = styleDir
		}
		putStyled(u.s, x, y+i, line, style)
	}
}

// drawPreview paints the current frame with upper half blocks: the
// foreground is the top pixel and the background the bottom one.
func (u *UI) drawPreview(x, y, width int) {
	putStr(u.s, x, y, fmt.Sprintf("%-*s", width, " Preview"))
	img := imaging.Resize(u.frame, width, width, imaging.NearestNeighbor)
	for row := 0; row < width/2; row++ {
		for col := 0; col < width; col++ {
			top := cellColor(img, col, 2*row)
			bottom := cellColor(img, col, 2*row+1)
			u.s.SetContent(x+col, y+1+row, '▀', nil, tcell.StyleDefault.Foreground(top).Background(bottom))
		}
	}
}

func cellColor(img image.Image, x, y int) tcell.Color {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	if c.A == 0 {
		return tcell.ColorBlack
	}
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}
