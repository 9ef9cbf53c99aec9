package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadOptions controls CSV parsing and type inference.
type LoadOptions struct {
	// Delimiter for CSV. If 0, sniffs among ',', ';', '\t', '|' on the header line.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// NormalizeNames lowercases header names and joins whitespace with '_'.
	NormalizeNames bool
	// InferenceSample caps the non-null values inspected per column when
	// choosing a type; 0 inspects every value.
	InferenceSample int
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// NullTokens are matched case-insensitively after trimming.
	NullTokens []string
}

// DefaultLoadOptions returns the defaults used by the CLI.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		NormalizeNames:  true,
		InferenceSample: 1000,
		NullTokens:      defaultNullTokens,
	}
}

// LoadFile opens path and loads it as a Table named after the file.
func LoadFile(path string, opt LoadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 && strings.HasSuffix(strings.ToLower(path), ".tsv") {
		opt.Delimiter = '\t'
	}
	return Load(f, filepath.Base(path), opt)
}

// Load reads CSV from r. name labels the Table and any MalformedInputError.
func Load(r io.Reader, name string, opt LoadOptions) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	text, err := decodeText(raw)
	if err != nil {
		return nil, &MalformedInputError{Source: name, Reason: "unreadable encoding", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &MalformedInputError{Source: name, Reason: "empty input"}
	}

	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(text)
	}
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, malformedFromCSV(name, err)
	}
	ncol := len(header)
	names, units := buildHeader(header, opt.NormalizeNames)

	cells := make([][]string, ncol)
	truncated := false
	rows := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, malformedFromCSV(name, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && ncol > 1 {
			continue
		}
		if len(rec) != ncol {
			line, _ := cr.FieldPos(0)
			return nil, &MalformedInputError{
				Source: name,
				Line:   line,
				Reason: fmt.Sprintf("row has %d fields, header has %d", len(rec), ncol),
			}
		}
		if opt.MaxRows > 0 && rows >= opt.MaxRows {
			truncated = true
			break
		}
		for j, v := range rec {
			cells[j] = append(cells[j], v)
		}
		rows++
	}

	nulls := opt.NullTokens
	if nulls == nil {
		nulls = defaultNullTokens
	}
	tokens := make(map[string]struct{}, len(nulls))
	for _, n := range nulls {
		tokens[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}

	cols := make([]Column, ncol)
	for j := 0; j < ncol; j++ {
		vals := cells[j]
		if vals == nil {
			vals = []string{}
		}
		typ := inferType(vals, tokens, opt)
		cols[j] = Column{
			Name:   names[j],
			Unit:   units[j],
			Type:   typ,
			Values: typedValues(vals, typ, tokens, opt),
		}
	}
	t, err := NewTable(name, cols, nil)
	if err != nil {
		return nil, &MalformedInputError{Source: name, Reason: "invalid header", Err: err}
	}
	t.Delimiter = delim
	t.Truncated = truncated
	return t, nil
}

// decodeText honors a UTF-8/UTF-16 BOM and falls back to Windows-1252 for
// input that is not valid UTF-8.
func decodeText(raw []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), raw)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(out) {
		out, _, err = transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
		if err != nil {
			return "", err
		}
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return "", errors.New("binary content")
	}
	return string(out), nil
}

func malformedFromCSV(name string, err error) error {
	if errors.Is(err, io.EOF) {
		return &MalformedInputError{Source: name, Reason: "missing header"}
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedInputError{Source: name, Line: pe.Line, Reason: "csv parse error", Err: pe.Err}
	}
	return &MalformedInputError{Source: name, Reason: "csv read error", Err: err}
}

// sniffDelimiter picks the candidate that appears most often on the first
// line outside quotes; ',' wins ties and empty counts.
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		line = text[:i]
	}
	counts := map[rune]int{}
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ',' || r == ';' || r == '\t' || r == '|'):
			counts[r]++
		}
	}
	best := ','
	for _, r := range []rune{';', '\t', '|'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}

func buildHeader(header []string, normalize bool) (names, units []string) {
	names = make([]string, len(header))
	units = make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		clean, unit := splitUnits(h)
		if normalize {
			clean = normalizeName(clean)
		}
		if clean == "" {
			clean = fmt.Sprintf("column_%d", i+1)
		}
		base := clean
		for seen[clean] > 0 {
			seen[base]++
			clean = fmt.Sprintf("%s_%d", base, seen[base])
		}
		seen[clean]++
		names[i] = clean
		units[i] = unit
	}
	return names, units
}

func inferType(vals []string, tokens map[string]struct{}, opt LoadOptions) ColumnType {
	limit := opt.InferenceSample
	var sample []string
	for _, v := range vals {
		if isNullToken(v, tokens) {
			continue
		}
		sample = append(sample, strings.TrimSpace(v))
		if limit > 0 && len(sample) >= limit {
			break
		}
	}
	if len(sample) == 0 {
		return Unknown
	}
	numeric, temporal, boolean := true, true, true
	for _, v := range sample {
		if numeric {
			if _, ok := parseNumeric(v, opt.DecimalSeparator, opt.ThousandsSeparator); !ok {
				numeric = false
			}
		}
		if temporal {
			if _, ok := parseTimeMaybe(v); !ok {
				temporal = false
			}
		}
		if boolean && !isBoolLike(v) {
			boolean = false
		}
		if !numeric && !temporal && !boolean {
			break
		}
	}
	switch {
	case numeric:
		return Numeric
	case temporal:
		return Datetime
	case boolean:
		return Categorical
	}
	unique := map[string]struct{}{}
	nonNull := 0
	for _, v := range vals {
		if isNullToken(v, tokens) {
			continue
		}
		nonNull++
		unique[strings.TrimSpace(v)] = struct{}{}
	}
	if len(unique) <= 20 || float64(len(unique))/float64(nonNull) < 0.05 {
		return Categorical
	}
	return Text
}

func typedValues(vals []string, typ ColumnType, tokens map[string]struct{}, opt LoadOptions) []Value {
	out := make([]Value, len(vals))
	for i, raw := range vals {
		v := Value{Raw: raw}
		if isNullToken(raw, tokens) {
			v.Null = true
			out[i] = v
			continue
		}
		switch typ {
		case Numeric:
			if x, ok := parseNumeric(raw, opt.DecimalSeparator, opt.ThousandsSeparator); ok {
				v.Num, v.Valid = x, true
			}
		case Datetime:
			if ts, ok := parseTimeMaybe(raw); ok {
				v.Time, v.Valid = ts, true
			}
		default:
			v.Valid = true
		}
		out[i] = v
	}
	return out
}
