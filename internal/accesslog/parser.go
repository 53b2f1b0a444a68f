// Package accesslog parses the seven-field CSV access-log format:
//
//	remotehost,rfc931,authuser,date,request,status,bytes
//	"10.0.0.2","-","apache",1549573860,"GET /api/user HTTP/1.0",200,1234
package accesslog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// Header lists the column names of the format in order.
var Header = []string{"remotehost", "rfc931", "authuser", "date", "request", "status", "bytes"}

var (
	// ErrHeader is returned for the column header line.
	ErrHeader = errors.New("accesslog: header line")

	// ErrBlankLine is returned for empty or whitespace-only lines.
	ErrBlankLine = errors.New("accesslog: blank line")

	// ErrFieldCount is returned when a line does not have seven fields.
	ErrFieldCount = errors.New("accesslog: wrong number of fields")

	// ErrOutOfRange is returned for a status outside 100-599 or negative bytes.
	ErrOutOfRange = errors.New("accesslog: value out of range")
)

// ParseError reports a line that could not be turned into a record.
type ParseError struct {
	Line  int64  // 1-based line number within the source, 0 when unknown
	Field string // column name, empty for whole-line errors
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "" && e.Line > 0:
		return fmt.Sprintf("accesslog: line %d: field %s: %v", e.Line, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("accesslog: field %s: %v", e.Field, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("accesslog: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("accesslog: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Skippable reports whether err marks a line that carries no record and is
// not a failure, such as the header or a blank line.
func Skippable(err error) bool {
	return errors.Is(err, ErrHeader) || errors.Is(err, ErrBlankLine)
}

// Parser parses lines from a single source and tracks line numbers.
// It is not safe for concurrent use.
type Parser struct {
	line int64
}

// NewParser creates a parser positioned before the first line.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses the next line of the source.
func (p *Parser) Parse(line string) (model.LogRecord, error) {
	p.line++
	r, err := ParseLine(line)
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.Line = p.line
	}
	return r, err
}

// Line returns the number of lines seen so far.
func (p *Parser) Line() int64 {
	return p.line
}

// ParseLine parses one line without line-number context.
func ParseLine(line string) (model.LogRecord, error) {
	if strings.TrimSpace(line) == "" {
		return model.LogRecord{}, ErrBlankLine
	}

	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true
	fields, err := cr.Read()
	if err != nil {
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) && errors.Is(csvErr.Err, csv.ErrFieldCount) {
			return model.LogRecord{}, &ParseError{Err: ErrFieldCount}
		}
		return model.LogRecord{}, &ParseError{Err: err}
	}

	if isHeader(fields) {
		return model.LogRecord{}, ErrHeader
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return model.LogRecord{}, &ParseError{Field: "date", Err: err}
	}
	status, err := strconv.Atoi(strings.TrimSpace(fields[5]))
	if err != nil {
		return model.LogRecord{}, &ParseError{Field: "status", Err: err}
	}
	if status < 100 || status > 599 {
		return model.LogRecord{}, &ParseError{Field: "status", Err: fmt.Errorf("%w: %d", ErrOutOfRange, status)}
	}
	bytes, err := strconv.ParseInt(strings.TrimSpace(fields[6]), 10, 64)
	if err != nil {
		return model.LogRecord{}, &ParseError{Field: "bytes", Err: err}
	}
	if bytes < 0 {
		return model.LogRecord{}, &ParseError{Field: "bytes", Err: fmt.Errorf("%w: %d", ErrOutOfRange, bytes)}
	}

	return model.LogRecord{
		RemoteHost: fields[0],
		RFC931:     fields[1],
		AuthUser:   fields[2],
		Timestamp:  ts,
		Request:    fields[4],
		Status:     status,
		Bytes:      bytes,
	}, nil
}

func isHeader(fields []string) bool {
	for i, name := range Header {
		if !strings.EqualFold(strings.TrimSpace(fields[i]), name) {
			return false
		}
	}
	return true
}

// Format renders r back into one CSV line, without the trailing newline.
// Fields are quoted only where CSV requires it, so ParseLine(Format(r))
// returns r.
func Format(r model.LogRecord) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{
		r.RemoteHost,
		r.RFC931,
		r.AuthUser,
		strconv.FormatInt(r.Timestamp, 10),
		r.Request,
		strconv.Itoa(r.Status),
		strconv.FormatInt(r.Bytes, 10),
	})
	w.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}
