package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseProps(t *testing.T, doc string) map[string]interface{} {
	t.Helper()
	tmpl, err := Parse([]byte(doc))
	require.NoError(t, err)
	return tmpl.Resources["Thing"].Properties
}

func TestDecodeShortTags(t *testing.T) {
	props := parseProps(t, `
parameters:
  Name:
    type: string
resources:
  Thing:
    kind: thing
    properties:
      ref: !Ref Name
      att: !GetAtt Thing.Arn
      deep: !GetAtt Thing.Policy.Name
      sub: !Sub "${Name}-suffix"
      join: !Join ["/", [a, !Ref Name]]
      imp: !ImportValue shared-key
`)

	assert.Equal(t, Ref{Name: "Name"}, props["ref"])
	assert.Equal(t, AttributeLookup{LogicalName: "Thing", Path: []string{"Arn"}}, props["att"])
	assert.Equal(t, AttributeLookup{LogicalName: "Thing", Path: []string{"Policy", "Name"}}, props["deep"])
	assert.Equal(t, Substitute{Template: "${Name}-suffix"}, props["sub"])
	assert.Equal(t, ImportValue{Key: Literal{Value: "shared-key"}}, props["imp"])

	join := props["join"].(Join)
	assert.Equal(t, "/", join.Delimiter)
	assert.Equal(t, []Expression{Literal{Value: "a"}, Ref{Name: "Name"}}, join.Parts)
}

func TestDecodeGetAttListForm(t *testing.T) {
	props := parseProps(t, `
resources:
  Thing:
    kind: thing
    properties:
      att: !GetAtt [Thing, Policy, Name]
`)
	assert.Equal(t, AttributeLookup{LogicalName: "Thing", Path: []string{"Policy", "Name"}}, props["att"])
}

func TestDecodeNestedIntrinsics(t *testing.T) {
	props := parseProps(t, `
parameters:
  Env:
    type: string
resources:
  Thing:
    kind: thing
    properties:
      imp: !ImportValue
        Sub: "${Env}-key"
      config:
        nested:
          - !Ref Env
          - plain
`)

	imp := props["imp"].(ImportValue)
	assert.Equal(t, Substitute{Template: "${Env}-key"}, imp.Key)

	config := props["config"].(map[string]interface{})
	nested := config["nested"].([]interface{})
	assert.Equal(t, Ref{Name: "Env"}, nested[0])
	assert.Equal(t, "plain", nested[1])
}

func TestDecodeRejectsMalformedIntrinsics(t *testing.T) {
	cases := map[string]string{
		"empty ref":         `ref: !Ref ""`,
		"getatt no attr":    `att: !GetAtt Thing`,
		"getatt empty seg":  `att: !GetAtt "Thing..Arn"`,
		"join no delimiter": `join: !Join [[a, b]]`,
		"join bad parts":    `join: !Join ["-", nope]`,
		"sub non-scalar":    `sub: !Sub [a]`,
		"sub unterminated":  `sub: !Sub "${Name"`,
		"sub empty name":    `sub: !Sub "${}"`,
	}
	for name, prop := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(`
resources:
  Thing:
    kind: thing
    properties:
      ` + prop + `
`))
			assert.Error(t, err)
		})
	}
}

func TestParseSubTemplate(t *testing.T) {
	parts, err := ParseSubTemplate("pre-${Name}-mid-${Other.Arn}-post")
	require.NoError(t, err)
	assert.Equal(t, []SubPart{
		{Literal: "pre-"},
		{Placeholder: "Name"},
		{Literal: "-mid-"},
		{Placeholder: "Other.Arn"},
		{Literal: "-post"},
	}, parts)
}

func TestParseSubTemplateEscape(t *testing.T) {
	parts, err := ParseSubTemplate("cost is ${!Price}, region ${Region}")
	require.NoError(t, err)
	assert.Equal(t, []SubPart{
		{Literal: "cost is "},
		{Literal: "${Price}"},
		{Literal: ", region "},
		{Placeholder: "Region"},
	}, parts)
}

func TestParseSubTemplateNoPlaceholders(t *testing.T) {
	parts, err := ParseSubTemplate("just text")
	require.NoError(t, err)
	assert.Equal(t, []SubPart{{Literal: "just text"}}, parts)

	parts, err = ParseSubTemplate("")
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestPlainRoundsExpressionsToLongForm(t *testing.T) {
	v := map[string]interface{}{
		"a": Ref{Name: "X"},
		"b": AttributeLookup{LogicalName: "Y", Path: []string{"Arn"}},
		"c": []interface{}{Substitute{Template: "${X}"}},
	}
	plain := Plain(v).(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"Ref": "X"}, plain["a"])
	assert.Equal(t, map[string]interface{}{"GetAtt": "Y.Arn"}, plain["b"])
	assert.Equal(t, []interface{}{map[string]interface{}{"Sub": "${X}"}}, plain["c"])
}

func TestWalkVisitsNestedExpressions(t *testing.T) {
	v := map[string]interface{}{
		"join": Join{Delimiter: "-", Parts: []Expression{
			Ref{Name: "A"},
			Literal{Value: []interface{}{Ref{Name: "B"}}},
		}},
		"imp": ImportValue{Key: Substitute{Template: "${C}"}},
	}

	var refs []string
	var subs, joins, imports int
	Walk(v, func(expr Expression) {
		switch e := expr.(type) {
		case Ref:
			refs = append(refs, e.Name)
		case Substitute:
			subs++
		case Join:
			joins++
		case ImportValue:
			imports++
		}
	})

	assert.ElementsMatch(t, []string{"A", "B"}, refs)
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, joins)
	assert.Equal(t, 1, imports)
}
