package filter

import "testing"

func TestEquality(t *testing.T) {
	runMatchCases(t, []matchCase{
		{
			filter:   `{"foo":"bar"}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"foo":"bar"}}`, `{"foo":["bar","baz"]}`, `{"foo":["baz"]}`},
			expected: []string{`{"foo":"bar"}`, `{"foo":["bar","baz"]}`},
		},
		{
			filter:   `{"foo.bar":"baz"}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":"baz"}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
			expected: []string{`{"foo":{"bar":"baz"}}`},
		},
		{
			filter:   `{"foo.bar":null}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
		},
		{
			filter:   `{"foo":null}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":0}`, `{"foo":1}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{}`, `{"foo":null}`},
		},
		{
			filter:   `{"foo":{"bar":"baz"}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":"baz"}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
			expected: []string{`{"foo":{"bar":"baz"}}`},
		},
		{
			filter:   `{"foo":{"bar":null}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":{"bar":null}}`},
		},
		{
			filter:   `{"foo":[1,2]}`,
			input:    []string{`{"foo":[1,2]}`, `{"foo":[[1,2],[2,3]]}`, `{"foo":[2,1]}`, `{"foo":[[2,1],[2,3]]}`, `{}`, `{"foo":[]}`, `{"foo":1}`, `{"foo":null}`},
			expected: []string{`{"foo":[1,2]}`, `{"foo":[[1,2],[2,3]]}`},
		},
		{
			filter:   `{"n":1}`,
			input:    []string{`{"n":1}`, `{"n":1.0}`, `{"n":"1"}`, `{"n":true}`, `{"n":[true,"1"]}`},
			expected: []string{`{"n":1}`, `{"n":1.0}`},
		},
	})
}

func TestEqOperator(t *testing.T) {
	runMatchCases(t, []matchCase{
		{
			filter:   `{"foo":{"$eq":"bar"}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"foo":"bar"}}`},
			expected: []string{`{"foo":"bar"}`},
		},
		{
			filter:   `{"foo.bar":{"$eq":"baz"}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":"baz"}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
			expected: []string{`{"foo":{"bar":"baz"}}`},
		},
		{
			filter:   `{"foo.bar":{"$eq":null}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
		},
		{
			filter:   `{"foo":{"$eq":{"bar":"baz"}}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":"baz"}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
			expected: []string{`{"foo":{"bar":"baz"}}`},
		},
		{
			filter:   `{"foo":{"$eq":{"bar":null}}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":{"bar":null}}`},
		},
		{
			filter:   `{"foo.bar":{"$eq":{"baz":"qux"}}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":{"baz":"qux"}}}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":{"bar":{"baz":"qux"}}}`},
		},
		{
			filter:   `{"foo.bar":{"$eq":{"baz":null}}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":{"baz":null}}}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":{"bar":{"baz":null}}}`},
		},
	})
}

func TestNeOperator(t *testing.T) {
	runMatchCases(t, []matchCase{
		{
			filter:   `{"foo":{"$ne":"bar"}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"foo":"bar"}}`},
			expected: []string{`{}`, `{"foo":"baz"}`, `{"foo":{"foo":"bar"}}`},
		},
		{
			filter:   `{"foo.foo":{"$ne":"bar"}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"foo":"bar"}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`},
		},
		{
			filter:   `{"foo.foo":{"$ne":null}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`},
			expected: []string{`{"foo":{"foo":"bar"}}`},
		},
		{
			filter:   `{"foo":{"$ne":{"foo":"bar"}}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`},
		},
		{
			// Direct inequality: an array never equals a scalar.
			filter:   `{"foo":{"$ne":"bar"}}`,
			input:    []string{`{"foo":["bar"]}`, `{"foo":["baz"]}`},
			expected: []string{`{"foo":["bar"]}`, `{"foo":["baz"]}`},
		},
		{
			filter:   `{"groups.name":{"$ne":null}}`,
			input:    []string{`{"groups":[{"name":"bob"}]}`, `{"groups":[]}`, `{"groups":[{"name":null}]}`, `{"groups":null}`},
			expected: []string{},
		},
	})
}

func TestGtLtOperators(t *testing.T) {
	runMatchCases(t, []matchCase{
		{
			filter:   `{"foo":{"$gt":1}}`,
			input:    []string{`{"foo":0}`, `{"foo":1}`, `{"foo":2}`, `{"foo":{"foo":"bar"}}`, `{}`, `{"foo":null}`, `{"foo":[1]}`, `{"foo":[2]}`, `{"foo":[0,2]}`, `{"foo":[]}`},
			expected: []string{`{"foo":2}`, `{"foo":[2]}`, `{"foo":[0,2]}`},
		},
		{
			filter: `{"foo.foo":{"$gt":1}}`,
			input: []string{`{"foo":{"foo":0}}`, `{"foo":{"foo":1}}`, `{"foo":{"foo":2}}`, `{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`,
				`{"foo":{"foo":null}}`, `{"foo":null}`, `{"foo":{"foo":[1]}}`, `{"foo":{"foo":[2]}}`, `{"foo":{"foo":[0,2]}}`, `{"foo":{"foo":[]}}`},
			expected: []string{`{"foo":{"foo":2}}`, `{"foo":{"foo":[2]}}`, `{"foo":{"foo":[0,2]}}`},
		},
		{
			filter:   `{"foo.foo":{"$gt":null}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`, `{"foo":{"foo":[]}}`, `{"foo":{"foo":[1]}}`},
			expected: []string{},
		},
		{
			filter:   `{"foo":{"$gt":{"foo":"bar"}}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":{"foo":"baz"}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{},
		},
		{
			filter:   `{"foo":{"$gt":"b"}}`,
			input:    []string{`{"foo":"a"}`, `{"foo":"c"}`, `{"foo":"bb"}`, `{"foo":"b"}`, `{"foo":2}`, `{"foo":["a","z"]}`},
			expected: []string{`{"foo":"c"}`, `{"foo":"bb"}`, `{"foo":["a","z"]}`},
		},
		{
			filter:   `{"foo":{"$lt":1}}`,
			input:    []string{`{"foo":0}`, `{"foo":1}`, `{"foo":2}`, `{"foo":{"foo":"bar"}}`, `{}`, `{"foo":null}`, `{"foo":[1]}`, `{"foo":[2]}`, `{"foo":[0,2]}`, `{"foo":[]}`},
			expected: []string{`{"foo":0}`, `{"foo":[0,2]}`},
		},
		{
			filter: `{"foo.foo":{"$lt":1}}`,
			input: []string{`{"foo":{"foo":0}}`, `{"foo":{"foo":1}}`, `{"foo":{"foo":2}}`, `{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`,
				`{"foo":{"foo":null}}`, `{"foo":null}`, `{"foo":{"foo":[1]}}`, `{"foo":{"foo":[2]}}`, `{"foo":{"foo":[0,2]}}`, `{"foo":{"foo":[]}}`},
			expected: []string{`{"foo":{"foo":0}}`, `{"foo":{"foo":[0,2]}}`},
		},
		{
			filter:   `{"foo.foo":{"$lt":null}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`, `{"foo":{"foo":[]}}`, `{"foo":{"foo":[1]}}`},
			expected: []string{},
		},
		{
			filter:   `{"foo":{"$gt":1,"$lt":5}}`,
			input:    []string{`{"foo":0}`, `{"foo":3}`, `{"foo":5}`, `{"foo":[0,6]}`},
			expected: []string{`{"foo":3}`, `{"foo":[0,6]}`},
		},
	})
}

func TestGteLteOperators(t *testing.T) {
	runMatchCases(t, []matchCase{
		{
			filter:   `{"foo":{"$gte":1}}`,
			input:    []string{`{"foo":0}`, `{"foo":1}`, `{"foo":2}`, `{"foo":{"foo":"bar"}}`, `{}`, `{"foo":null}`, `{"foo":[1]}`, `{"foo":[2]}`, `{"foo":[0,2]}`, `{"foo":[]}`},
			expected: []string{`{"foo":1}`, `{"foo":2}`, `{"foo":[1]}`, `{"foo":[2]}`, `{"foo":[0,2]}`},
		},
		{
			filter:   `{"foo":{"$gte":-1}}`,
			input:    []string{`{"foo":0}`, `{"foo":{"foo":"bar"}}`, `{}`, `{"foo":null}`, `{"foo":[1]}`, `{"foo":[-2,2]}`, `{"foo":[]}`},
			expected: []string{`{"foo":0}`, `{"foo":[1]}`, `{"foo":[-2,2]}`},
		},
		{
			filter: `{"foo.foo":{"$gte":1}}`,
			input: []string{`{"foo":{"foo":0}}`, `{"foo":{"foo":1}}`, `{"foo":{"foo":2}}`, `{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":{"foo":null}}`,
				`{"foo":null}`, `{"foo":{"foo":[0]}}`, `{"foo":{"foo":[1]}}`, `{"foo":{"foo":[2]}}`, `{"foo":{"foo":[0,2]}}`, `{"foo":{"foo":[]}}`},
			expected: []string{`{"foo":{"foo":1}}`, `{"foo":{"foo":2}}`, `{"foo":{"foo":[1]}}`, `{"foo":{"foo":[2]}}`, `{"foo":{"foo":[0,2]}}`},
		},
		{
			filter:   `{"foo.foo":{"$gte":null}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`, `{"foo":{"foo":[]}}`, `{"foo":{"foo":[1]}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`},
		},
		{
			filter:   `{"foo":{"$lte":1}}`,
			input:    []string{`{"foo":0}`, `{"foo":1}`, `{"foo":2}`, `{"foo":{"foo":"bar"}}`, `{}`, `{"foo":null}`, `{"foo":[1]}`, `{"foo":[2]}`, `{"foo":[0,2]}`, `{"foo":[]}`},
			expected: []string{`{"foo":0}`, `{"foo":1}`, `{"foo":[1]}`, `{"foo":[0,2]}`},
		},
		{
			filter:   `{"foo":{"$lte":-1}}`,
			input:    []string{`{"foo":-2}`, `{"foo":{"foo":"bar"}}`, `{}`, `{"foo":null}`, `{"foo":[1]}`, `{"foo":[-2]}`, `{"foo":[-2,2]}`, `{"foo":[]}`},
			expected: []string{`{"foo":-2}`, `{"foo":[-2]}`, `{"foo":[-2,2]}`},
		},
		{
			filter:   `{"foo.foo":{"$lte":null}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"foo":"bar"}}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`, `{"foo":{"foo":[]}}`, `{"foo":{"foo":[1]}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"foo":null}}`},
		},
		{
			filter:   `{"foo":{"$lte":{"foo":"bar"}}}`,
			input:    []string{`{"foo":{"foo":"bar"}}`, `{"foo":{"foo":"a"}}`},
			expected: []string{},
		},
	})
}

func TestInNinOperators(t *testing.T) {
	runMatchCases(t, []matchCase{
		{
			filter:   `{"foo":{"$in":["bar","baz"]}}`,
			input:    []string{`{"foo":"bar"}`, `{"foo":"baz"}`, `{"foo":["bar"]}`, `{}`, `{"foo":{"foo":"bar"}}`},
			expected: []string{`{"foo":"bar"}`, `{"foo":"baz"}`, `{"foo":["bar"]}`},
		},
		{
			filter:   `{"foo.bar":{"$in":["baz"]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":"baz"}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
			expected: []string{`{"foo":{"bar":"baz"}}`},
		},
		{
			filter:   `{"foo.bar":{"$in":[null]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
		},
		{
			filter:   `{"foo":{"$in":[{"bar":"baz"}]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":"baz"}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
			expected: []string{`{"foo":{"bar":"baz"}}`},
		},
		{
			filter:   `{"foo":{"$in":[{"bar":null}]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":"baz"}`, `{"foo":{"bar":null}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":{"bar":null}}`},
		},
		{
			filter:   `{"foo":{"$in":[]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":[]}`},
			expected: []string{},
		},
		{
			// Per-element $ne: ["bar"] is not equal to "bar", so it is kept.
			filter:   `{"foo":{"$nin":["bar","baz"]}}`,
			input:    []string{`{"foo":"bar"}`, `{"foo":"baz"}`, `{"foo":["bar"]}`, `{}`, `{"foo":{"foo":"bar"}}`},
			expected: []string{`{"foo":["bar"]}`, `{}`, `{"foo":{"foo":"bar"}}`},
		},
		{
			filter:   `{"foo.bar":{"$nin":["baz"]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":["baz"]}}`, `{"foo":{"bar":"baz"}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":{"bar":["baz"]}}`, `{"foo":{"bar":null}}`, `{"foo":null}`},
		},
		{
			filter:   `{"foo.bar":{"$nin":[null]}}`,
			input:    []string{`{"foo":{"bar":1}}`, `{"foo":"bar"}`, `{}`, `{"foo":{"bar":null}}`, `{"foo":{"bar":[null]}}`, `{"foo":null}`, `{"foo":{}}`},
			expected: []string{`{"foo":{"bar":1}}`, `{"foo":{"bar":[null]}}`},
		},
		{
			filter:   `{"foo":{"$nin":[{"bar":null}]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`, `{"foo":null}`, `{"foo":{}}`, `{"foo":{"bar":null}}`},
			expected: []string{`{"foo":"bar"}`, `{}`, `{"foo":null}`, `{"foo":{}}`},
		},
		{
			filter:   `{"foo":{"$nin":[]}}`,
			input:    []string{`{"foo":"bar"}`, `{}`},
			expected: []string{`{"foo":"bar"}`, `{}`},
		},
	})
}

func TestAndOperator(t *testing.T) {
	input := []string{
		`{"foo":"bar","baz":2}`,
		`{"foo":["bar"],"baz":[0,2]}`,
		`{"baz":2}`,
		`{"foo":"bar"}`,
		`{"foo":null}`,
		`{"baz":null}`,
	}
	expected := []string{`{"foo":"bar","baz":2}`, `{"foo":["bar"],"baz":[0,2]}`}

	runMatchCases(t, []matchCase{
		{filter: `{"$and":[{"foo":"bar"},{"baz":{"$gt":1}}]}`, input: input, expected: expected},
		{filter: `{"foo":"bar","baz":{"$gt":1}}`, input: input, expected: expected},
		{
			filter:   `{"$and":[{"$and":[{"a":1}]},{"b":{"$in":[2,3]}}]}`,
			input:    []string{`{"a":1,"b":3}`, `{"a":1,"b":4}`, `{"a":[1],"b":[5,2]}`, `{"b":2}`},
			expected: []string{`{"a":1,"b":3}`, `{"a":[1],"b":[5,2]}`},
		},
		{
			filter:   `{"$and":[{"a":{"$gte":1}},{"a":{"$lte":3}}],"b":"x"}`,
			input:    []string{`{"a":2,"b":"x"}`, `{"a":4,"b":"x"}`, `{"a":2,"b":"y"}`},
			expected: []string{`{"a":2,"b":"x"}`},
		},
	})
}
