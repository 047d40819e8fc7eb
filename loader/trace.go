// Package loader reads memory access traces for the cache models.
//
// Two formats are understood. The simple format has one access per line,
// "read,<hex address>" or "write,<hex address>". The lackey format is the
// log written by valgrind's lackey tool with --trace-mem=yes; it is split
// into an instruction-fetch stream and a data stream.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/cachemodel/timing/cache"
)

// Format identifies a trace file format.
type Format int

const (
	// FormatSimple is "read,<addr>" / "write,<addr>" per line.
	FormatSimple Format = iota
	// FormatLackey is valgrind lackey output.
	FormatLackey
)

func (f Format) String() string {
	switch f {
	case FormatSimple:
		return "simple"
	case FormatLackey:
		return "lackey"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat converts "simple" or "lackey" to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "simple", "":
		return FormatSimple, nil
	case "lackey", "valgrind":
		return FormatLackey, nil
	default:
		return FormatSimple, fmt.Errorf("unknown trace format %q", name)
	}
}

// LackeyTrace holds the two streams extracted from a lackey log.
type LackeyTrace struct {
	// Instruction holds instruction fetches, all reads.
	Instruction []cache.Access
	// Data holds loads and stores. A modify becomes a read then a write.
	Data []cache.Access
}

// ParseError reports a malformed line in a simple trace.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads a simple-format trace file.
func Load(path string) ([]cache.Access, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// LoadLackey reads a lackey log file.
func LoadLackey(path string) (*LackeyTrace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lackey log: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseLackey(f)
}

// Parse reads a simple-format trace. Blank lines and lines starting with
// '#' are skipped; any other malformed line is an error.
func Parse(r io.Reader) ([]cache.Access, error) {
	var accesses []cache.Access

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		access, err := parseSimpleLine(text)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: text, Err: err}
		}
		accesses = append(accesses, access)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return accesses, nil
}

func parseSimpleLine(text string) (cache.Access, error) {
	kind, addrText, ok := strings.Cut(text, ",")
	if !ok {
		return cache.Access{}, fmt.Errorf("expected <kind>,<address>")
	}

	addr, err := ParseAddr(addrText)
	if err != nil {
		return cache.Access{}, err
	}

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "read", "r":
		return cache.Access{Addr: addr, Kind: cache.Read}, nil
	case "write", "w":
		return cache.Access{Addr: addr, Kind: cache.Write}, nil
	default:
		return cache.Access{}, fmt.Errorf("unknown access kind %q", kind)
	}
}

// ParseAddr parses a hexadecimal address with an optional 0x prefix.
// Negative addresses fail with *cache.AddressRangeError.
func ParseAddr(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "-") {
		return 0, &cache.AddressRangeError{Negative: true}
	}

	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	addr, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address: %w", err)
	}

	return addr, nil
}

// ParseLackey splits a lackey log into instruction and data streams. Lines
// that are not "<op> <addr>,<size>" records, such as valgrind's banner, are
// skipped.
func ParseLackey(r io.Reader) (*LackeyTrace, error) {
	trace := &LackeyTrace{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}

		addrText, _, ok := strings.Cut(fields[1], ",")
		if !ok {
			continue
		}

		addr, err := ParseAddr(addrText)
		if err != nil {
			continue
		}

		switch fields[0] {
		case "I":
			trace.Instruction = append(trace.Instruction,
				cache.Access{Addr: addr, Kind: cache.Read})
		case "L":
			trace.Data = append(trace.Data,
				cache.Access{Addr: addr, Kind: cache.Read})
		case "S":
			trace.Data = append(trace.Data,
				cache.Access{Addr: addr, Kind: cache.Write})
		case "M":
			trace.Data = append(trace.Data,
				cache.Access{Addr: addr, Kind: cache.Read},
				cache.Access{Addr: addr, Kind: cache.Write})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lackey log: %w", err)
	}

	return trace, nil
}

// WriteTrace writes accesses in the simple format.
func WriteTrace(w io.Writer, accesses []cache.Access) error {
	bw := bufio.NewWriter(w)
	for _, a := range accesses {
		if _, err := fmt.Fprintf(bw, "%s,%x\n", a.Kind, a.Addr); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}
	return bw.Flush()
}

// SaveTrace writes accesses to a simple-format file.
func SaveTrace(path string, accesses []cache.Access) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}

	if err := WriteTrace(f, accesses); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// Replay feeds accesses to a model in order and stops at the first
// rejected access.
func Replay(model cache.Model, accesses []cache.Access) error {
	for i, a := range accesses {
		var err error
		switch a.Kind {
		case cache.Write:
			_, err = model.Write(a.Addr)
		default:
			_, err = model.Read(a.Addr)
		}
		if err != nil {
			return fmt.Errorf("access %d (%s 0x%x): %w", i, a.Kind, a.Addr, err)
		}
	}
	return nil
}
