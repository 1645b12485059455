// Package report renders run results and image listings as tables.
package report

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/zeebo/blake3"

	"github.com/calvinalkan/mangle/internal/corrupt"
	"github.com/calvinalkan/mangle/internal/fs"
	"github.com/calvinalkan/mangle/internal/gcm"
	"github.com/calvinalkan/mangle/internal/image"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	return t
}

func hex32(v int64) string {
	return fmt.Sprintf("0x%08X", v)
}

// Result writes one row per processed target plus a total.
func Result(w io.Writer, res corrupt.Result) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Entry", "Path", "Offset", "Size", "Visited", "Mutations", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	for _, e := range res.Entries {
		status := "ok"

		switch {
		case e.Skipped != corrupt.SkipNone:
			status = "skipped: " + string(e.Skipped)
		case e.Mutations == 0:
			status = "unchanged"
		}

		if e.Skipped == corrupt.SkipNotFound {
			t.AppendRow(table.Row{e.Name, "-", "-", "-", "-", "-", status})

			continue
		}

		t.AppendRow(table.Row{e.Name, e.Path, hex32(e.Offset), e.Size, e.Visited, e.Mutations, status})
	}

	t.AppendFooter(table.Row{"Total", "", "", "", "", res.Mutations, ""})
	t.Render()
}

// Entries writes a path/offset/size listing. A non-empty prefix keeps only
// entries whose name starts with it.
func Entries(w io.Writer, entries []image.Entry, prefix string) int {
	t := newTable(w)
	t.AppendHeader(table.Row{"Path", "Offset", "Size"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})

	n := 0

	for _, e := range entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}

		t.AppendRow(table.Row{e.Name, hex32(e.Offset), e.Length})
		n++
	}

	t.Render()

	return n
}

// Operations writes the operation table.
func Operations(w io.Writer) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Operation", "Aliases", "Operand", "Effect"})

	for _, op := range corrupt.Operations() {
		operand := "-"
		if op.NeedsOperand() {
			operand = "yes"
		}

		t.AppendRow(table.Row{op.String(), strings.Join(op.Aliases(), ", "), operand, op.Usage()})
	}

	t.Render()
}

// Info writes the disc header, its validity and entry counts. digest is
// printed when not empty.
func Info(w io.Writer, img *gcm.Image, digest string) {
	h := img.Header()

	t := newTable(w)
	t.AppendRow(table.Row{"Game ID", h.ID()})
	t.AppendRow(table.Row{"Title", h.Title})
	t.AppendRow(table.Row{"Disc", h.DiscNumber})
	t.AppendRow(table.Row{"Version", h.Version})
	t.AppendRow(table.Row{"Magic", fmt.Sprintf("0x%08X", h.Magic)})
	t.AppendRow(table.Row{"DOL offset", hex32(int64(h.DOLOffset))})
	t.AppendRow(table.Row{"FST offset", hex32(int64(h.FSTOffset))})
	t.AppendRow(table.Row{"FST size", hex32(int64(h.FSTSize))})
	t.AppendRow(table.Row{"Image size", img.Size()})
	t.AppendRow(table.Row{"Files", len(img.Files())})

	if img.Valid() {
		t.AppendRow(table.Row{"Valid", "yes"})
	} else {
		t.AppendRow(table.Row{"Valid", "no: " + img.Problem().Error()})
	}

	if digest != "" {
		t.AppendRow(table.Row{"BLAKE3", digest})
	}

	t.Render()
}

// Digest returns the hex BLAKE3-256 digest of everything read from r.
func Digest(r io.Reader) (string, error) {
	h := blake3.New()

	_, err := io.Copy(h, r)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile returns the digest of the file at path.
func DigestFile(fsys fs.FS, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	defer f.Close()

	return Digest(f)
}
