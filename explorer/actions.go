package explorer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Load opens path and replaces the current session. On failure the previous
// session is discarded and no tree is shown.
func (u *UI) Load(path string) {
	u.preview.Cancel()
	if u.sess != nil {
		_ = u.sess.Close()
		u.sess = nil
	}
	u.selected = make(map[string]bool)
	u.cursor, u.top = 0, 0

	sess, err := u.open(path)
	if err != nil {
		u.log.Warn("open failed", zap.String("path", path), zap.Error(err))
		u.status = fmt.Sprintf("Open failed: %v", err)
		u.refresh()
		return
	}
	u.sess = sess
	u.refresh()
	u.status = fmt.Sprintf("Opened %s: %d entries, %s", path, sess.Tree().Len(), human(sess.Tree().TotalSize()))
}

func (u *UI) startOpen() {
	ask := func() {
		u.ask("Open image", "", func(path string) {
			if path == "" {
				u.status = "Cancelled."
				return
			}
			u.Load(path)
		})
	}
	if u.sess != nil && u.sess.Dirty() {
		u.confirm("Discard unsaved changes?", ask)
		return
	}
	ask()
}

func (u *UI) requireSession() bool {
	if u.sess == nil {
		u.status = "No image open."
		return false
	}
	return true
}

func (u *UI) startAdd() {
	if !u.requireSession() {
		return
	}
	u.ask("Add files (space separated)", "", func(input string) {
		sources := strings.Fields(input)
		if len(sources) == 0 {
			u.status = "Cancelled."
			return
		}
		// an added file may replace the one being previewed
		u.preview.Cancel()
		res, err := u.sess.AddFiles(sources)
		u.finishBatch(res.Summary("Added"), err)
	})
}

func (u *UI) startDelete() {
	if !u.requireSession() {
		return
	}
	paths := u.selection()
	if len(paths) == 0 {
		u.status = "Nothing selected."
		return
	}
	u.confirm(fmt.Sprintf("Delete %d item(s)?", len(paths)), func() {
		u.preview.Cancel()
		res, err := u.sess.Delete(paths)
		u.finishBatch(res.Summary("Deleted"), err)
	})
}

func (u *UI) startExtract() {
	if !u.requireSession() {
		return
	}
	paths := u.selection()
	if len(paths) == 0 {
		u.status = "Nothing selected."
		return
	}
	u.ask("Extract to directory", ".", func(dest string) {
		if dest == "" {
			u.status = "Cancelled."
			return
		}
		res := u.sess.Extract(paths, dest)
		u.status = res.Summary("Extracted")
	})
}

func (u *UI) startSave() {
	if !u.requireSession() {
		return
	}
	u.ask("Save image as", u.sess.Path(), func(out string) {
		if out == "" {
			u.status = "Cancelled."
			return
		}
		if err := u.sess.Save(out); err != nil {
			u.status = fmt.Sprintf("Save failed: %v", err)
			return
		}
		u.status = fmt.Sprintf("Saved %s (%s)", out, human(int64(len(u.sess.Image()))))
	})
}

func (u *UI) startMkdir() {
	if !u.requireSession() {
		return
	}
	u.ask("New directory", "/", func(p string) {
		if p == "" || p == "/" {
			u.status = "Cancelled."
			return
		}
		err := u.sess.Mkdir(p)
		u.refresh()
		if err != nil {
			u.status = fmt.Sprintf("Mkdir failed: %v", err)
			return
		}
		u.status = "Created " + p
	})
}

func (u *UI) reload() {
	if !u.requireSession() {
		return
	}
	if err := u.sess.Reload(); err != nil {
		u.status = fmt.Sprintf("Reload failed: %v", err)
		return
	}
	u.refresh()
	u.status = fmt.Sprintf("Reloaded: %d entries", u.sess.Tree().Len())
}

func (u *UI) startQuit() {
	if u.sess != nil && u.sess.Dirty() {
		u.confirm("Image has unsaved changes. Quit anyway?", u.RequestStop)
		return
	}
	u.RequestStop()
}

// finishBatch refreshes the rows and reports the batch summary, or the
// rebuild error when the tree could not be re-read.
func (u *UI) finishBatch(summary string, err error) {
	u.refresh()
	if err != nil {
		u.status = fmt.Sprintf("%s; reload failed: %v", summary, err)
		return
	}
	u.status = summary
}

func human(b int64) string {
	if b >= 1024*1024 {
		return fmt.Sprintf("%dM", b/(1024*1024))
	}
	if b >= 1024 {
		return fmt.Sprintf("%dK", b/1024)
	}
	return fmt.Sprintf("%dB", b)
}
