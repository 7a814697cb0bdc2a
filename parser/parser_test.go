package parser

import (
	"go/constant"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnotations(t *testing.T) {
	var input = `
@NoValue
@entitybug.GenerateEntity("MyTest")
@entitybug.GenerateEntity{Value: "Order", PersistenceUnit: "orders-pu"}
@entitybug.GeneratedEntityMarker{
	Name: "Order",
	PersistenceUnit: ` + "`orders-pu`" + `,
}
@SliceAnnotation{1, -2, 3.5, 'x', true, nil}
@Ref(pkg.SomeConst)
`

	annos, err := ParseAnnotations("foo", strings.NewReader(input))
	require.Nil(t, err)
	require.Len(t, annos, 6)

	assert.Equal(t, "NoValue", annos[0].Type.String())
	assert.Nil(t, annos[0].Value)

	assert.Equal(t, "entitybug", annos[1].Type.PackageAlias)
	assert.Equal(t, "GenerateEntity", annos[1].Type.Name)
	lit, ok := annos[1].Value.(LiteralNode)
	require.True(t, ok)
	assert.Equal(t, "MyTest", constant.StringVal(lit.Val))
	assert.Equal(t, 3, annos[1].Pos.Line)

	agg, ok := annos[2].Value.(AggregateNode)
	require.True(t, ok)
	require.Len(t, agg.Contents, 2)
	assert.True(t, agg.HasKeys())
	assert.Equal(t, "Value", agg.Contents[0].Key.(RefNode).Ident.Name)
	assert.Equal(t, "orders-pu", constant.StringVal(agg.Contents[1].Value.(LiteralNode).Val))

	agg, ok = annos[3].Value.(AggregateNode)
	require.True(t, ok)
	require.Len(t, agg.Contents, 2)
	assert.Equal(t, "orders-pu", constant.StringVal(agg.Contents[1].Value.(LiteralNode).Val))
	assert.Equal(t, 5, annos[3].Pos.Line)

	agg, ok = annos[4].Value.(AggregateNode)
	require.True(t, ok)
	require.Len(t, agg.Contents, 6)
	assert.False(t, agg.HasKeys())
	neg, _ := constant.Int64Val(agg.Contents[1].Value.(LiteralNode).Val)
	assert.Equal(t, int64(-2), neg)
	assert.Equal(t, constant.Bool, agg.Contents[4].Value.(LiteralNode).Val.Kind())
	assert.True(t, agg.Contents[5].Value.(LiteralNode).IsNil())

	ref, ok := annos[5].Value.(RefNode)
	require.True(t, ok)
	assert.Equal(t, "pkg.SomeConst", ref.Ident.String())
}

func TestParseAnnotations_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		line   int
		column int
		errMsg string
	}{
		{
			name:   "missing at sign",
			input:  "GenerateEntity(\"x\")",
			line:   1,
			column: 1,
			errMsg: "expecting '@'",
		},
		{
			name:   "trailing text",
			input:  "@Foo(\"x\") and more",
			line:   1,
			column: 11,
			errMsg: "expecting end-of-line",
		},
		{
			name:   "unclosed aggregate",
			input:  "@Foo{Name: \"x\"",
			line:   1,
			column: 15,
			errMsg: "expecting ',' or '}'",
		},
		{
			name:   "missing identifier",
			input:  "@(1)",
			line:   1,
			column: 2,
			errMsg: "expecting identifier",
		},
		{
			name:   "bad negation",
			input:  "@Foo(-\"x\")",
			line:   1,
			column: 7,
			errMsg: "expecting numeric literal",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAnnotations("foo", strings.NewReader(tc.input))
			require.NotNil(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
			assert.Equal(t, tc.line, err.Pos().Line)
			assert.Equal(t, tc.column, err.Pos().Column)
		})
	}
}

func TestParseAnnotation(t *testing.T) {
	a, err := ParseAnnotation("foo", strings.NewReader(`@entitybug.Table("generated_entity")`))
	require.NoError(t, err)
	assert.Equal(t, "entitybug.Table", a.Type.String())

	_, err = ParseAnnotation("foo", strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, ErrNoAnnotations)

	_, err = ParseAnnotation("foo", strings.NewReader("@A\n@B"))
	assert.Error(t, err)
}
