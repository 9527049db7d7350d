// Package location models positions in debuggee sources. An OriginalLocation
// points into pre-transformation (source-mapped) code, a GeneratedLocation
// into the code that actually runs. The two kinds share one interface but
// each only answers the accessors of its own side.
//
// Lines are 1-based and columns 0-based, matching source map conventions.
package location

import "fmt"

// SourceActor is the actor representing a source the location points into
type SourceActor interface {
	ActorID() string
	URL() string
}

// SourceRef is a plain SourceActor for sources that are known only by url
type SourceRef struct {
	ID   string
	Href string
}

// ActorID implements SourceActor
func (s SourceRef) ActorID() string { return s.ID }

// URL implements SourceActor
func (s SourceRef) URL() string { return s.Href }

// ContractViolation is the panic value raised when a location is asked for
// a field of the other kind. It signals a caller bug and is not meant to be
// recovered.
type ContractViolation struct {
	Kind     string
	Accessor string
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("%s location does not have %s", c.Kind, c.Accessor)
}

// Location is either an OriginalLocation or a GeneratedLocation
type Location interface {
	IsOriginal() bool

	OriginalSource() SourceActor
	OriginalURL() string
	OriginalLine() int
	OriginalColumn() (int, bool)
	OriginalName() string

	GeneratedSource() SourceActor
	GeneratedURL() string
	GeneratedLine() int
	GeneratedColumn() (int, bool)
	GeneratedLastColumn() (int, bool)

	// Equals compares url and line, and column only when both sides have
	// one. Locations of different kinds are never equal.
	//
	// Equals is not transitive: a location without a column equals two
	// locations on the same line with different columns, which are not
	// equal to each other.
	Equals(other Location) bool

	Record() Record
}

// Record is the JSON shape of a location on the wire
type Record struct {
	Source     SourceForm `json:"source"`
	Line       int        `json:"line"`
	Column     *int       `json:"column,omitempty"`
	LastColumn *int       `json:"lastColumn,omitempty"`
}

// SourceForm identifies the source of a Record
type SourceForm struct {
	Actor string `json:"actor,omitempty"`
	URL   string `json:"url"`
}

func formOf(s SourceActor) SourceForm {
	if s == nil {
		return SourceForm{}
	}
	return SourceForm{Actor: s.ActorID(), URL: s.URL()}
}

func urlOf(s SourceActor) string {
	if s == nil {
		return ""
	}
	return s.URL()
}

func intPtr(v int) *int { return &v }

func optional(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func columnsMatch(a, b *int) bool {
	return a == nil || b == nil || *a == *b
}

// OriginalLocation is a position in source-mapped code
type OriginalLocation struct {
	source SourceActor
	line   int
	column *int
	name   string
}

// NewOriginal creates an original location without column or name
func NewOriginal(source SourceActor, line int) OriginalLocation {
	return OriginalLocation{source: source, line: line}
}

// WithColumn returns a copy with the column set
func (o OriginalLocation) WithColumn(column int) OriginalLocation {
	o.column = intPtr(column)
	return o
}

// WithName returns a copy with the symbol name set
func (o OriginalLocation) WithName(name string) OriginalLocation {
	o.name = name
	return o
}

// OriginalFromGenerated converts g into an original location on source,
// keeping line and column. The generated source is dropped.
func OriginalFromGenerated(g GeneratedLocation, source SourceActor) OriginalLocation {
	o := OriginalLocation{source: source, line: g.line}
	if g.column != nil {
		o.column = intPtr(*g.column)
	}
	return o
}

func (o OriginalLocation) IsOriginal() bool { return true }
func (o OriginalLocation) OriginalSource() SourceActor { return o.source }
func (o OriginalLocation) OriginalURL() string { return urlOf(o.source) }
func (o OriginalLocation) OriginalLine() int { return o.line }
func (o OriginalLocation) OriginalColumn() (int, bool) { return optional(o.column) }
func (o OriginalLocation) OriginalName() string { return o.name }
func (o OriginalLocation) GeneratedSource() SourceActor { panic(o.violation("generatedSource")) }
func (o OriginalLocation) GeneratedURL() string { panic(o.violation("generatedUrl")) }
func (o OriginalLocation) GeneratedLine() int { panic(o.violation("generatedLine")) }
func (o OriginalLocation) GeneratedColumn() (int, bool) { panic(o.violation("generatedColumn")) }
func (o OriginalLocation) GeneratedLastColumn() (int, bool) {
	panic(o.violation("generatedLastColumn"))
}

func (o OriginalLocation) violation(accessor string) *ContractViolation {
	return &ContractViolation{Kind: "original", Accessor: accessor}
}

// Equals implements Location
func (o OriginalLocation) Equals(other Location) bool {
	ol, ok := other.(OriginalLocation)
	if !ok {
		return false
	}
	return o.OriginalURL() == ol.OriginalURL() &&
		o.line == ol.line &&
		columnsMatch(o.column, ol.column)
}

// Record implements Location
func (o OriginalLocation) Record() Record {
	r := Record{Source: formOf(o.source), Line: o.line}
	if o.column != nil {
		r.Column = intPtr(*o.column)
	}
	return r
}

func (o OriginalLocation) String() string {
	if c, ok := o.OriginalColumn(); ok {
		return fmt.Sprintf("%s:%d:%d", o.OriginalURL(), o.line, c)
	}
	return fmt.Sprintf("%s:%d", o.OriginalURL(), o.line)
}

// GeneratedLocation is a position in the code that actually runs
type GeneratedLocation struct {
	source     SourceActor
	line       int
	column     *int
	lastColumn *int
}

// NewGenerated creates a generated location without column
func NewGenerated(source SourceActor, line int) GeneratedLocation {
	return GeneratedLocation{source: source, line: line}
}

// WithColumn returns a copy with the column set
func (g GeneratedLocation) WithColumn(column int) GeneratedLocation {
	g.column = intPtr(column)
	return g
}

// WithLastColumn returns a copy with an explicit end of span
func (g GeneratedLocation) WithLastColumn(lastColumn int) GeneratedLocation {
	g.lastColumn = intPtr(lastColumn)
	return g
}

// GeneratedFromOriginal converts o into a generated location on source,
// keeping line and column. The original source and name are dropped.
func GeneratedFromOriginal(o OriginalLocation, source SourceActor) GeneratedLocation {
	g := GeneratedLocation{source: source, line: o.line}
	if o.column != nil {
		g.column = intPtr(*o.column)
	}
	return g
}

func (g GeneratedLocation) IsOriginal() bool { return false }
func (g GeneratedLocation) GeneratedSource() SourceActor { return g.source }
func (g GeneratedLocation) GeneratedURL() string { return urlOf(g.source) }
func (g GeneratedLocation) GeneratedLine() int { return g.line }
func (g GeneratedLocation) GeneratedColumn() (int, bool) { return optional(g.column) }

// GeneratedLastColumn returns the explicit last column, or column+1 when only
// the column is known.
func (g GeneratedLocation) GeneratedLastColumn() (int, bool) {
	if g.lastColumn != nil {
		return *g.lastColumn, true
	}
	if g.column != nil {
		return *g.column + 1, true
	}
	return 0, false
}

func (g GeneratedLocation) OriginalSource() SourceActor { panic(g.violation("originalSource")) }
func (g GeneratedLocation) OriginalURL() string { panic(g.violation("originalUrl")) }
func (g GeneratedLocation) OriginalLine() int { panic(g.violation("originalLine")) }
func (g GeneratedLocation) OriginalColumn() (int, bool) { panic(g.violation("originalColumn")) }
func (g GeneratedLocation) OriginalName() string { panic(g.violation("originalName")) }

func (g GeneratedLocation) violation(accessor string) *ContractViolation {
	return &ContractViolation{Kind: "generated", Accessor: accessor}
}

// Equals implements Location
func (g GeneratedLocation) Equals(other Location) bool {
	gl, ok := other.(GeneratedLocation)
	if !ok {
		return false
	}
	return g.GeneratedURL() == gl.GeneratedURL() &&
		g.line == gl.line &&
		columnsMatch(g.column, gl.column)
}

// Record implements Location
func (g GeneratedLocation) Record() Record {
	r := Record{Source: formOf(g.source), Line: g.line}
	if g.column != nil {
		r.Column = intPtr(*g.column)
	}
	if last, ok := g.GeneratedLastColumn(); ok {
		r.LastColumn = intPtr(last)
	}
	return r
}

func (g GeneratedLocation) String() string {
	if c, ok := g.GeneratedColumn(); ok {
		return fmt.Sprintf("%s:%d:%d", g.GeneratedURL(), g.line, c)
	}
	return fmt.Sprintf("%s:%d", g.GeneratedURL(), g.line)
}
