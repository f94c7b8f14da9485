// Package shell is an interactive inspector for an open store.
//
// On a terminal it runs a go-prompt loop with completion; otherwise it
// reads one command per line from its input, which keeps it scriptable.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/logging"
	"github.com/xtxerr/tonestore/internal/peaks"
	"github.com/xtxerr/tonestore/internal/storage"
	"github.com/xtxerr/tonestore/internal/storage/schema"
)

// ErrQuit is returned by Execute for the exit command.
var ErrQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {"help", "list commands", (*Shell).help},
		"info":    {"info", "store identity and row counts", (*Shell).info},
		"tables":  {"tables", "list tables", (*Shell).tables},
		"read":    {"read events|labels|features <index>", "print one record", (*Shell).read},
		"summary": {"summary [table...]", "column summaries", (*Shell).summary},
		"query":   {"query <sql>", "run SQL over an export of the store", (*Shell).query},
		"peaks":   {"peaks <hz:mag> <hz:mag> ...", "run the peak extractor", (*Shell).peaks},
		"exit":    {"exit", "leave the shell", nil},
	}
}

// Shell executes inspection commands against a Service.
type Shell struct {
	svc       *storage.Service
	extractor peaks.Extractor
	out       io.Writer
	log       *slog.Logger
}

// New creates a Shell writing to out.
func New(svc *storage.Service, extractor peaks.Extractor, out io.Writer) *Shell {
	return &Shell{
		svc:       svc,
		extractor: extractor,
		out:       out,
		log:       logging.Component("shell"),
	}
}

// Run reads commands from in until exit or end of input. go-prompt is used
// when in and stdout are both terminals.
func (s *Shell) Run(ctx context.Context, in *os.File) error {
	if term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		s.runPrompt(ctx)
		return nil
	}
	return s.RunLines(ctx, in)
}

// RunLines executes one command per line of r. Command errors are printed
// and do not stop the loop.
func (s *Shell) RunLines(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Execute(ctx, sc.Text()); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return sc.Err()
}

func (s *Shell) runPrompt(ctx context.Context) {
	quit := false
	p := prompt.New(
		func(line string) {
			if err := s.Execute(ctx, line); err != nil {
				if errors.Is(err, ErrQuit) {
					quit = true
					return
				}
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
		},
		s.Complete,
		prompt.OptionPrefix("tonestore> "),
		prompt.OptionTitle("tonestore"),
		prompt.OptionSetExitCheckerOnInput(func(_ string, breakline bool) bool {
			return breakline && (quit || ctx.Err() != nil)
		}),
	)
	p.Run()
}

// Execute runs one command line. Blank lines and '#' comments are ignored.
func (s *Shell) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	if name == "quit" || name == "exit" {
		return ErrQuit
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", name)
	}

	var args []string
	if name == "query" {
		if rest = strings.TrimSpace(rest); rest != "" {
			args = []string{rest}
		}
	} else {
		args = strings.Fields(rest)
	}

	s.log.Debug("command", "name", name, "args", len(args))
	return cmd.run(s, ctx, args)
}

// Complete suggests command names and table or record kinds.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()

	fields := strings.Fields(before)
	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(before, " ")) {
		var out []prompt.Suggest
		for _, name := range sortedCommands() {
			out = append(out, prompt.Suggest{Text: name, Description: commands[name].help})
		}
		return prompt.FilterHasPrefix(out, word, true)
	}

	switch strings.ToLower(fields[0]) {
	case "read":
		return prompt.FilterHasPrefix(groupSuggestions(), word, true)
	case "summary":
		var out []prompt.Suggest
		for _, t := range schema.All() {
			out = append(out, prompt.Suggest{Text: t.String(), Description: t.Path()})
		}
		return prompt.FilterHasPrefix(out, word, true)
	}
	return nil
}

func groupSuggestions() []prompt.Suggest {
	var out []prompt.Suggest
	for _, g := range schema.Groups() {
		out = append(out, prompt.Suggest{Text: g})
	}
	return out
}

func sortedCommands() []string {
	return []string{"exit", "help", "info", "peaks", "query", "read", "summary", "tables"}
}

func (s *Shell) help(_ context.Context, _ []string) error {
	for _, name := range sortedCommands() {
		c := commands[name]
		fmt.Fprintf(s.out, "  %-40s %s\n", c.usage, c.help)
	}
	return nil
}

func (s *Shell) info(_ context.Context, _ []string) error {
	PrintInfo(s.out, s.svc.Info())
	return nil
}

func (s *Shell) tables(_ context.Context, _ []string) error {
	geo := s.svc.DB().Geometry()
	for _, t := range schema.All() {
		info := t.Info()
		shape := "scalar"
		if w := t.Width(geo); info.Dim != schema.DimNone {
			shape = fmt.Sprintf("[%d]", w)
		}
		fmt.Fprintf(s.out, "  %-28s %-8s %s\n", t.Path(), info.Elem, shape)
	}
	return nil
}

func (s *Shell) read(_ context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", commands["read"].usage)
	}
	index, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: index %q", errors.ErrInvalidInput, args[1])
	}

	db := s.svc.DB()
	switch strings.ToLower(args[0]) {
	case schema.GroupEvents:
		e, err := db.ReadEventAtIndex(index)
		if err != nil {
			return err
		}
		PrintEvent(s.out, index, e)
	case schema.GroupLabels:
		l, err := db.ReadLabelAtIndex(index)
		if err != nil {
			return err
		}
		PrintLabel(s.out, index, l)
	case schema.GroupFeatures:
		f, err := db.ReadFeatureAtIndex(index)
		if err != nil {
			return err
		}
		PrintFeature(s.out, index, f)
	default:
		return fmt.Errorf("%w: %q is not events, labels or features", errors.ErrUnknownTable, args[0])
	}
	return nil
}

func (s *Shell) summary(ctx context.Context, args []string) error {
	var tables []schema.Table
	for _, a := range args {
		t, err := schema.Parse(a)
		if err != nil {
			return err
		}
		tables = append(tables, t)
	}

	results, err := s.svc.Summarize(ctx, tables...)
	if err != nil {
		return err
	}
	PrintSummaries(s.out, results)
	return nil
}

func (s *Shell) query(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", commands["query"].usage)
	}
	rows, err := s.svc.Query(ctx, "", args[0])
	if err != nil {
		return err
	}
	PrintRows(s.out, rows)
	return nil
}

func (s *Shell) peaks(_ context.Context, args []string) error {
	points := make([]peaks.Point, 0, len(args))
	for _, a := range args {
		p, err := peaks.ParsePoint(a)
		if err != nil {
			return err
		}
		points = append(points, p)
	}
	PrintPeaks(s.out, s.extractor.Process(points))
	return nil
}
