package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfce/gmgn-filter/internal/otel"
)

// eventFilter selects which events `sniper events` prints.
type eventFilter struct {
	kind  string
	level string
	comp  string
	token string
}

var eventsFlags struct {
	eventFilter
	day     string
	tail    int
	follow  bool
	rawJSON bool
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recorded engine events",
	Long: `Prints the most recent events of a day's event file, optionally
filtered by kind prefix, minimum level, component or token.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	f := eventsCmd.Flags()
	f.StringVar(&eventsFlags.day, "day", "", "day to read, YYYY-MM-DD (default today)")
	f.IntVarP(&eventsFlags.tail, "tail", "n", 50, "number of recent events to show")
	f.BoolVarP(&eventsFlags.follow, "follow", "f", false, "keep printing new events")
	f.StringVar(&eventsFlags.kind, "kind", "", "kind prefix, e.g. 'trigger' or 'scan.stale'")
	f.StringVar(&eventsFlags.level, "level", "", "minimum level: debug, info, warn, error")
	f.StringVar(&eventsFlags.comp, "comp", "", "component name")
	f.StringVar(&eventsFlags.token, "token", "", "token as chain:address")
	f.BoolVar(&eventsFlags.rawJSON, "json", false, "print raw JSON lines")
}

func runEvents(cmd *cobra.Command, args []string) error {
	day := time.Now()
	if eventsFlags.day != "" {
		d, err := time.ParseInLocation("2006-01-02", eventsFlags.day, time.Local)
		if err != nil {
			return fmt.Errorf("bad --day: %w", err)
		}
		day = d
	}

	path := otel.EventsPath(eventsDir(), day)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("no event log at %s (run `sniper run` first): %w", path, err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	filter := eventsFlags.eventFilter
	for _, l := range readTail(f, eventsFlags.tail, filter.match) {
		printEvent(out, l)
	}
	if !eventsFlags.follow {
		return nil
	}

	// The scanner in readTail consumed the file; poll for appended lines.
	r := bufio.NewReader(f)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	ctx := cmd.Context()
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			continue
		}
		if err != nil {
			return err
		}
		l, ok := parseLine(line)
		if ok && filter.match(l.ev) {
			printEvent(out, l)
		}
	}
}

type parsedLine struct {
	ev  otel.Event
	raw []byte
}

func parseLine(b []byte) (parsedLine, bool) {
	b = []byte(strings.TrimRight(string(b), "\r\n"))
	if len(b) == 0 {
		return parsedLine{}, false
	}
	var ev otel.Event
	if json.Unmarshal(b, &ev) != nil {
		return parsedLine{}, false
	}
	return parsedLine{ev: ev, raw: b}, true
}

// readTail returns the last n lines of r whose event matches.
func readTail(r io.Reader, n int, match func(otel.Event) bool) []parsedLine {
	if n <= 0 {
		return nil
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]parsedLine, 0, n)
	for sc.Scan() {
		l, ok := parseLine(sc.Bytes())
		if !ok || !match(l.ev) {
			continue
		}
		if len(ring) < n {
			ring = append(ring, l)
			continue
		}
		copy(ring, ring[1:])
		ring[n-1] = l
	}
	return ring
}

func levelRank(l otel.Level) int {
	switch l {
	case otel.LevelInfo:
		return 1
	case otel.LevelWarn:
		return 2
	case otel.LevelError:
		return 3
	}
	return 0
}

func (f eventFilter) match(ev otel.Event) bool {
	if f.kind != "" && !strings.HasPrefix(string(ev.Kind), f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(otel.Level(f.level)) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.token != "" && ev.Token != f.token {
		return false
	}
	return true
}

func printEvent(w io.Writer, l parsedLine) {
	if eventsFlags.rawJSON {
		fmt.Fprintln(w, string(l.raw))
		return
	}
	fmt.Fprintln(w, formatEvent(l.ev))
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(ev otel.Event) string {
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s [%-6s] %-16s", ev.Time.Local().Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}

	if ev.Msg != "" {
		parts = append(parts, ev.Msg)
	}
	if ev.Gen > 0 {
		parts = append(parts, fmt.Sprintf("gen=%d", ev.Gen))
	}
	if ev.Column != "" {
		parts = append(parts, "col="+ev.Column)
	}
	if ev.Token != "" {
		parts = append(parts, "token="+ev.Token)
	}
	if ev.Key != "" {
		parts = append(parts, "key="+ev.Key)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

func durPrecision(ms float64) int {
	switch {
	case ms >= 100:
		return 0
	case ms >= 1:
		return 1
	}
	return 2
}
