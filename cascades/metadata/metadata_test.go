package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades/query"
)

func TestBuild(t *testing.T) {
	md, err := NewBuilder().
		RecordType("order", "id").
		RecordType("customer", "id").
		ValueIndex("order_by_customer", "order", "customer").
		AggregateIndex("total_by_customer", "order", query.Sum, "total", "customer").
		AggregateIndex("orders_per_customer", "order", query.Count, "", "customer").
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"customer", "order"}, md.RecordTypeNames())
	assert.Len(t, md.Indexes(), 3)
	assert.Len(t, md.IndexesOn("order"), 3)
	assert.Empty(t, md.IndexesOn("customer"))

	ix, ok := md.Index("total_by_customer")
	require.True(t, ok)
	assert.Equal(t, AggregateIndex, ix.Kind)
	assert.Equal(t, "aggregate", ix.Kind.String())

	_, ok = md.Index("missing")
	assert.False(t, ok)
	rt, ok := md.RecordType("order")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, rt.PrimaryKey)
}

func TestIndexAggregate(t *testing.T) {
	field := func(name string) query.Value { return query.Field(nil, name) }

	value := &Index{Name: "v", Kind: ValueIndex, Fields: []string{"a"}}
	assert.Nil(t, value.Aggregate(field))

	count := &Index{Name: "c", Kind: AggregateIndex, Func: query.Count}
	assert.True(t, count.Aggregate(field).SemanticEquals(query.CountRows(), nil))

	sum := &Index{Name: "s", Kind: AggregateIndex, Func: query.Sum, AggregateField: "total"}
	agg := sum.Aggregate(field)
	require.NotNil(t, agg)
	assert.Equal(t, query.Sum, agg.Func)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Builder) *Builder
		err   string
	}{
		{
			name:  "unnamed type",
			build: func(b *Builder) *Builder { return b.RecordType("", "id") },
			err:   "without a name",
		},
		{
			name:  "no primary key",
			build: func(b *Builder) *Builder { return b.RecordType("order") },
			err:   "no primary key",
		},
		{
			name: "duplicate type",
			build: func(b *Builder) *Builder {
				return b.RecordType("order", "id").RecordType("order", "id")
			},
			err: "declared twice",
		},
		{
			name:  "unknown record type",
			build: func(b *Builder) *Builder { return b.ValueIndex("ix", "order", "customer") },
			err:   "unknown record type",
		},
		{
			name: "value index without fields",
			build: func(b *Builder) *Builder {
				return b.RecordType("order", "id").ValueIndex("ix", "order")
			},
			err: "has no fields",
		},
		{
			name: "duplicate index",
			build: func(b *Builder) *Builder {
				return b.RecordType("order", "id").
					ValueIndex("ix", "order", "a").
					ValueIndex("ix", "order", "b")
			},
			err: "index ix declared twice",
		},
		{
			name: "sum without field",
			build: func(b *Builder) *Builder {
				return b.RecordType("order", "id").AggregateIndex("ix", "order", query.Sum, "", "a")
			},
			err: "needs a field",
		},
		{
			name: "first error wins",
			build: func(b *Builder) *Builder {
				return b.RecordType("order").ValueIndex("", "order", "a")
			},
			err: "no primary key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build(NewBuilder()).Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}
