package filter

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/coffersTech/nanofilter/value"
)

func TestCache_ReusesPredicates(t *testing.T) {
	c := NewCache(4)

	p1, err := c.CompileJSON([]byte(`{"a":{"$gt":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := c.Compile(map[string]any{"a": map[string]any{"$gt": 1}})
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("equal filters should share one predicate")
	}

	st := c.Stats()
	if st.Entries != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestCache_KeyOrderIsSignificant(t *testing.T) {
	c := NewCache(4)
	p1, _ := c.CompileJSON([]byte(`{"a":{"x":1,"y":2}}`))
	p2, _ := c.CompileJSON([]byte(`{"a":{"y":2,"x":1}}`))
	if p1 == p2 {
		t.Error("differently ordered literals compile differently")
	}
}

func TestCache_Evicts(t *testing.T) {
	c := NewCache(2)
	for i := 0; i < 5; i++ {
		if _, err := c.Compile(map[string]any{"n": i}); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	// n=4 is the most recent and must still be cached.
	before := c.Stats().Hits
	if _, err := c.Compile(map[string]any{"n": 4}); err != nil {
		t.Fatal(err)
	}
	if c.Stats().Hits != before+1 {
		t.Error("most recent entry was evicted")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d", c.Len())
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := NewCache(4)
	for i := 0; i < 2; i++ {
		_, err := c.Compile(map[string]any{"a": map[string]any{"$in": 1}})
		if ErrorCodeOf(err) != CodeMalformedOperand {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if _, err := c.CompileJSON([]byte(`nope`)); ErrorCodeOf(err) != CodeInvalidJSON {
		t.Errorf("CompileJSON: %v", err)
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(16)
	doc := value.MustParseJSON(`{"k":3}`)

	var wg sync.WaitGroup
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				spec := fmt.Sprintf(`{"k":{"$lte":%d}}`, (g+i)%8)
				p, err := c.CompileJSON([]byte(spec))
				if err != nil {
					t.Error(err)
					return
				}
				want := (g+i)%8 >= 3
				if p.Match(doc) != want {
					t.Errorf("%s: Match = %v", spec, !want)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() != 8 {
		t.Errorf("Len = %d, want 8", c.Len())
	}
}

func TestCache_NonFiniteNumbersAreDistinct(t *testing.T) {
	tests := []struct {
		name         string
		first, again map[string]any
		doc          string
	}{
		{"inf vs null", map[string]any{"a": math.Inf(1)}, map[string]any{"a": nil}, `{}`},
		{"null vs inf", map[string]any{"a": nil}, map[string]any{"a": math.Inf(1)}, `{}`},
		{"gte null vs -inf", map[string]any{"a": map[string]any{"$gte": nil}}, map[string]any{"a": map[string]any{"$gte": math.Inf(-1)}}, `{"a":5}`},
		{"nan vs inf", map[string]any{"a": math.NaN()}, map[string]any{"a": math.Inf(1)}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache(8)
			if _, err := c.Compile(tt.first); err != nil {
				t.Fatal(err)
			}
			cached, err := c.Compile(tt.again)
			if err != nil {
				t.Fatal(err)
			}
			direct := MustCompile(tt.again)
			doc := value.MustParseJSON(tt.doc)
			if cached.Match(doc) != direct.Match(doc) {
				t.Errorf("cached predicate disagrees with a direct compile on %s", tt.doc)
			}
			if st := c.Stats(); st.Entries != 2 || st.Hits != 0 {
				t.Errorf("Stats = %+v, want two entries and no hits", st)
			}
		})
	}
}
