package location

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	appJS = SourceRef{ID: "conn0.source1", Href: "http://example.com/app.js"}
	appTS = SourceRef{ID: "conn0.source2", Href: "http://example.com/app.ts"}
)

func TestGeneratedLastColumnDefault(t *testing.T) {
	for _, column := range []int{0, 1, 17} {
		g := NewGenerated(appJS, 3).WithColumn(column)
		last, ok := g.GeneratedLastColumn()
		require.True(t, ok)
		assert.Equal(t, column+1, last)
	}

	g := NewGenerated(appJS, 3).WithColumn(4).WithLastColumn(0)
	last, ok := g.GeneratedLastColumn()
	require.True(t, ok)
	assert.Equal(t, 0, last)

	_, ok = NewGenerated(appJS, 3).GeneratedLastColumn()
	assert.False(t, ok)
}

func requireViolation(t *testing.T, accessor string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected %s to panic", accessor)
		cv, ok := r.(*ContractViolation)
		require.True(t, ok, "panic value %T is not a *ContractViolation", r)
		assert.Equal(t, accessor, cv.Accessor)
	}()
	fn()
}

func TestCrossKindAccessorsPanic(t *testing.T) {
	var o Location = NewOriginal(appTS, 1).WithColumn(2)
	var g Location = NewGenerated(appJS, 1).WithColumn(2)

	requireViolation(t, "generatedLine", func() { o.GeneratedLine() })
	requireViolation(t, "generatedColumn", func() { o.GeneratedColumn() })
	requireViolation(t, "generatedLastColumn", func() { o.GeneratedLastColumn() })
	requireViolation(t, "generatedUrl", func() { o.GeneratedURL() })
	requireViolation(t, "generatedSource", func() { o.GeneratedSource() })

	requireViolation(t, "originalLine", func() { g.OriginalLine() })
	requireViolation(t, "originalColumn", func() { g.OriginalColumn() })
	requireViolation(t, "originalName", func() { g.OriginalName() })
	requireViolation(t, "originalUrl", func() { g.OriginalURL() })
	requireViolation(t, "originalSource", func() { g.OriginalSource() })
}

func TestOriginalFromGenerated(t *testing.T) {
	g := NewGenerated(appJS, 12).WithColumn(7).WithLastColumn(20)
	o := OriginalFromGenerated(g, appTS)

	assert.Equal(t, g.GeneratedLine(), o.OriginalLine())
	gc, _ := g.GeneratedColumn()
	oc, ok := o.OriginalColumn()
	require.True(t, ok)
	assert.Equal(t, gc, oc)
	assert.Equal(t, appTS.Href, o.OriginalURL())
	assert.Equal(t, appTS, o.OriginalSource())

	// the source location is untouched
	assert.Equal(t, appJS.Href, g.GeneratedURL())
}

func TestGeneratedFromOriginal(t *testing.T) {
	o := NewOriginal(appTS, 5).WithName("greet")
	g := GeneratedFromOriginal(o, appJS)

	assert.Equal(t, 5, g.GeneratedLine())
	_, ok := g.GeneratedColumn()
	assert.False(t, ok)
	assert.Equal(t, appJS.Href, g.GeneratedURL())
}

func TestEquals(t *testing.T) {
	otherTS := SourceRef{ID: "conn0.source9", Href: appTS.Href}

	tests := []struct {
		name string
		a, b Location
		want bool
	}{
		{"same", NewOriginal(appTS, 1).WithColumn(2), NewOriginal(appTS, 1).WithColumn(2), true},
		{"url not actor", NewOriginal(appTS, 1), NewOriginal(otherTS, 1), true},
		{"different line", NewOriginal(appTS, 1), NewOriginal(appTS, 2), false},
		{"different column", NewOriginal(appTS, 1).WithColumn(2), NewOriginal(appTS, 1).WithColumn(3), false},
		{"one column missing", NewOriginal(appTS, 1), NewOriginal(appTS, 1).WithColumn(3), true},
		{"name ignored", NewOriginal(appTS, 1).WithName("a"), NewOriginal(appTS, 1).WithName("b"), true},
		{"generated", NewGenerated(appJS, 4).WithColumn(1), NewGenerated(appJS, 4).WithColumn(1).WithLastColumn(9), true},
		{"generated different url", NewGenerated(appJS, 4), NewGenerated(appTS, 4), false},
		{"cross kind", NewOriginal(appJS, 4), NewGenerated(appJS, 4), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equals(tt.b))
			assert.Equal(t, tt.want, tt.b.Equals(tt.a))
		})
	}
}

func TestEqualsIsNotTransitive(t *testing.T) {
	noColumn := NewOriginal(appTS, 10)
	col1 := NewOriginal(appTS, 10).WithColumn(1)
	col2 := NewOriginal(appTS, 10).WithColumn(2)

	assert.True(t, col1.Equals(noColumn))
	assert.True(t, noColumn.Equals(col2))
	assert.False(t, col1.Equals(col2))
}

func TestRecordJSON(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		want string
	}{
		{
			name: "original",
			loc:  NewOriginal(appTS, 3).WithColumn(0).WithName("greet"),
			want: `{"source":{"actor":"conn0.source2","url":"http://example.com/app.ts"},"line":3,"column":0}`,
		},
		{
			name: "original without column",
			loc:  NewOriginal(appTS, 3),
			want: `{"source":{"actor":"conn0.source2","url":"http://example.com/app.ts"},"line":3}`,
		},
		{
			name: "generated",
			loc:  NewGenerated(appJS, 8).WithColumn(4),
			want: `{"source":{"actor":"conn0.source1","url":"http://example.com/app.js"},"line":8,"column":4,"lastColumn":5}`,
		},
		{
			name: "generated explicit last column",
			loc:  NewGenerated(appJS, 8).WithColumn(4).WithLastColumn(30),
			want: `{"source":{"actor":"conn0.source1","url":"http://example.com/app.js"},"line":8,"column":4,"lastColumn":30}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.loc.Record())
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "http://example.com/app.ts:3:1", NewOriginal(appTS, 3).WithColumn(1).String())
	assert.Equal(t, "http://example.com/app.js:3", NewGenerated(appJS, 3).String())
}
