package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/studynote/internal/client/notes"
	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/filex"
	"github.com/dmitrijs2005/studynote/internal/netx"
	"github.com/dmitrijs2005/studynote/internal/rpc"
)

const exportsDir = "exports"

// notesChanged renders the first push after entering the notes screen and
// every push that changed the list.
func (a *App) notesChanged() {
	list := a.notes.Notes()

	a.mu.Lock()
	show := a.fresh || !sameNotes(a.rendered, list)
	a.rendered = list
	a.fresh = false
	a.mu.Unlock()

	if show {
		a.render(list)
	}
}

func sameNotes(a, b []notes.Note) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Title != b[i].Title || a[i].Body != b[i].Body {
			return false
		}
	}
	return true
}

func (a *App) render(list []notes.Note) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No notes yet. Use 'add' to create one.")
		return
	}
	for i, n := range list {
		title := n.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(a.out, "%3d. %s", i+1, title)
		if n.UpdatedAt != nil {
			fmt.Fprintf(a.out, "  [%s]", n.UpdatedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintln(a.out)
		for _, line := range strings.Split(n.Body, "\n") {
			fmt.Fprintf(a.out, "     %s\n", line)
		}
	}
}

func (a *App) List(ctx context.Context) error {
	a.render(a.notes.Notes())
	return nil
}

func (a *App) Add(ctx context.Context) error {
	title, err := getSimpleText(a.reader, "Title (optional)", a.out)
	if err != nil {
		return err
	}
	body, err := getMultiline(a.reader, "Description", a.out)
	if err != nil {
		return err
	}

	a.notes.Add(ctx, title, body)
	return nil
}

// pick resolves a 1-based list position.
func (a *App) pick(arg string) (notes.Note, bool) {
	list := a.notes.Notes()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		a.Alert("Error", fmt.Sprintf("No note number %q, see 'list'", arg))
		return notes.Note{}, false
	}
	return list[n-1], true
}

// Edit opens note n. An empty title keeps the current one and "-" clears
// it; an empty description keeps the current one.
func (a *App) Edit(ctx context.Context, arg string) error {
	n, ok := a.pick(arg)
	if !ok {
		return nil
	}
	a.notes.OpenEdit(n)
	defer a.notes.CancelEdit()

	edit := a.notes.Editing()
	fmt.Fprintf(a.out, "Title: %s\nDescription:\n%s\n", edit.Title, edit.Body)

	title, err := getSimpleText(a.reader, "New title (Enter keeps, '-' clears)", a.out)
	if err != nil {
		return err
	}
	switch title {
	case "":
		title = edit.Title
	case "-":
		title = ""
	}

	body, err := getMultiline(a.reader, "New description (Enter keeps)", a.out)
	if err != nil {
		return err
	}
	if body == "" {
		body = edit.Body
	}

	a.notes.SaveEdit(ctx, title, body)
	return nil
}

func (a *App) Delete(ctx context.Context, arg string) error {
	n, ok := a.pick(arg)
	if !ok {
		return nil
	}
	a.notes.Delete(ctx, n.ID)
	return nil
}

// Export has the server write all of the user's notes to object storage and
// downloads the result into ./exports.
func (a *App) Export(ctx context.Context) error {
	u := a.provider.CurrentUser()
	if u == nil {
		a.Alert("Error", "User not authenticated")
		return nil
	}

	url, err := a.api.ExportDocuments(ctx, rpc.Query{
		Collection: common.NotesCollection,
		Filter:     docstore.Filter{Field: "userId", Value: u.ID},
	})
	if err != nil {
		a.logger.Error(ctx, "export failed", "error", err)
		a.Alert("Error", "Failed to export notes")
		return err
	}

	dir, err := filex.EnsureSubDir(a.exportBase, exportsDir)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("notes-%s.json", time.Now().UTC().Format("20060102-150405"))
	f, err := filex.CreateExclusive(dir, name)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := netx.DownloadToWriter(ctx, url, f)
	if err != nil {
		a.logger.Error(ctx, "download failed", "error", err)
		a.Alert("Error", "Failed to download export")
		return err
	}

	fmt.Fprintf(a.out, "Exported %d bytes to %s\n", n, f.Name())
	return nil
}
