package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lojaerp/erp-console/internal/session"
	"github.com/lojaerp/erp-console/internal/shared"
)

var noticePrefix = map[shared.NoticeKind]string{
	shared.NoticeSuccess: "ok",
	shared.NoticeInfo:    "info",
	shared.NoticeWarn:    "aviso",
	shared.NoticeError:   "erro",
}

// terminal prints notices on stderr and plays the navigator for the session
// manager: the only place an expired session can send the operator is back to
// the login command.
type terminal struct {
	mu       sync.Mutex
	w        io.Writer
	path     string
	problems int
}

func newTerminal(w io.Writer) *terminal {
	return &terminal{w: w, path: "/"}
}

func (t *terminal) Notify(_ context.Context, n shared.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n.Kind == shared.NoticeWarn || n.Kind == shared.NoticeError {
		t.problems++
	}
	_, _ = fmt.Fprintf(t.w, "[%s] %s\n", noticePrefix[n.Kind], n.Message)
}

func (t *terminal) CurrentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

func (t *terminal) Navigate(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path
	if path == session.LoginPath {
		_, _ = fmt.Fprintln(t.w, "Execute `erpconsole login -u USUARIO` para entrar novamente.")
	}
}

func (t *terminal) setPath(path string) {
	t.mu.Lock()
	t.path = path
	t.mu.Unlock()
}

// reported tells whether a warning or error already reached the operator.
func (t *terminal) reported() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.problems > 0
}

// output renders command results as tables or JSON.
type output struct {
	w    io.Writer
	json bool
	pt   *message.Printer
}

func newOutput(w io.Writer, jsonOutput bool) *output {
	return &output{w: w, json: jsonOutput, pt: message.NewPrinter(language.BrazilianPortuguese)}
}

func (o *output) money(d decimal.Decimal) string {
	return o.pt.Sprintf("R$ %.2f", d.InexactFloat64())
}

func (o *output) number(f float64) string {
	return o.pt.Sprintf("%.2f", f)
}

func (o *output) encode(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (o *output) line(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format+"\n", args...)
}
