package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedTree = `{
  "preamble": "EL CONGRESO DECRETA:",
  "divisions": [
    {"name": "TITULO", "ordinal": "I", "title": "Disposiciones generales", "body": "",
     "articles": [{"ordinal": "1", "body": "Objeto de la ley.", "articles": []}],
     "divisions": [
       {"name": "CAPITULO", "ordinal": "I", "title": "Ambito", "body": "",
        "articles": [
          {"ordinal": "2", "body": "Se aplica en todo el territorio.", "articles": [
            {"ordinal": "a", "body": "Zonas urbanas.", "articles": []},
            {"ordinal": "b", "body": "Zonas rurales.", "articles": []}
          ]}
        ],
        "divisions": []}
     ]}
  ],
  "articles": [],
  "references": [{"name": "Firma", "body": "Dado en la sala de sesiones."}]
}`

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestValidateAcceptsWellFormedTree(t *testing.T) {
	r := Validate(decode(t, nestedTree))
	assert.True(t, r.Valid, r.Error)
	assert.Empty(t, r.Error)
}

func TestValidateReportsPathQualifiedErrors(t *testing.T) {
	cases := []struct {
		name string
		tree string
		want string
	}{
		{
			name: "deep article missing body",
			tree: `{"divisions":[
			  {"name":"","ordinal":"","title":"","body":"","articles":[],"divisions":[]},
			  {"name":"","ordinal":"","title":"","body":"","articles":[],"divisions":[]},
			  {"name":"","ordinal":"","title":"","body":"","articles":[],"divisions":[
			    {"name":"","ordinal":"","title":"","body":"","divisions":[],"articles":[
			      {"ordinal":"1","body":"x","articles":[]},
			      {"ordinal":"2","articles":[]}
			    ]}
			  ]}
			]}`,
			want: "Division 2 nested division 0 article 1 missing required field: body",
		},
		{
			name: "division missing divisions",
			tree: `{"divisions":[{"name":"","ordinal":"","title":"","body":"","articles":[]}]}`,
			want: "Division 0 missing required field: divisions",
		},
		{
			name: "numeric ordinal",
			tree: `{"articles":[{"ordinal":1,"body":"x","articles":[]}]}`,
			want: "Article 0 field ordinal must be a string or null, got number",
		},
		{
			name: "null articles",
			tree: `{"articles":[{"ordinal":"1","body":"x","articles":null}]}`,
			want: "Article 0 field articles must be an array, got null",
		},
		{
			name: "sub-article missing ordinal",
			tree: `{"articles":[{"ordinal":"1","body":"x","articles":[{"body":"y","articles":[]}]}]}`,
			want: "Article 0 sub-article 0 missing required field: ordinal",
		},
		{
			name: "root divisions not array",
			tree: `{"divisions":{}}`,
			want: "document field divisions must be an array, got object",
		},
		{
			name: "reference without body",
			tree: `{"references":[{"name":"Firma"}]}`,
			want: "Reference 0 missing required field: body",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Validate(decode(t, tc.tree))
			assert.False(t, r.Valid)
			assert.Equal(t, tc.want, r.Error)
		})
	}
}

func TestValidateAllowsNullStrings(t *testing.T) {
	r := Validate(decode(t, `{"articles":[{"ordinal":null,"body":"x","articles":[]}]}`))
	assert.True(t, r.Valid, r.Error)
}

func TestValidateRejectsNonObjectRoot(t *testing.T) {
	r := Validate([]any{})
	assert.False(t, r.Valid)
	assert.Equal(t, "document must be a JSON object, got array", r.Error)
}

func TestInjectOrderIsGapFreeAtEveryDepth(t *testing.T) {
	doc := FromRaw(decode(t, nestedTree))
	doc.Divisions = append(doc.Divisions, Division{Order: 99}, Division{Order: 99})
	InjectOrder(doc)

	var checkArticles func([]Article)
	checkArticles = func(list []Article) {
		for i, a := range list {
			assert.Equal(t, i+1, a.Order)
			checkArticles(a.Articles)
		}
	}
	var checkDivisions func([]Division)
	checkDivisions = func(list []Division) {
		for i, d := range list {
			assert.Equal(t, i+1, d.Order)
			checkArticles(d.Articles)
			checkDivisions(d.Divisions)
		}
	}
	checkDivisions(doc.Divisions)
	checkArticles(doc.Articles)
	require.Len(t, doc.References, 1)
	assert.Equal(t, 1, doc.References[0].Order)
}

func TestInjectedTreeStillValidates(t *testing.T) {
	doc := FromRaw(decode(t, nestedTree))
	InjectOrder(doc)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	r := Validate(decode(t, string(b)))
	assert.True(t, r.Valid, r.Error)
}

func TestExtractTextSkipsLabels(t *testing.T) {
	doc := FromRaw(decode(t, nestedTree))
	text := ExtractText(doc)

	assert.Equal(t, "EL CONGRESO DECRETA:\n"+
		"Disposiciones generales\n"+
		"Objeto de la ley.\n"+
		"Ambito\n"+
		"Se aplica en todo el territorio.\n"+
		"Zonas urbanas.\n"+
		"Zonas rurales.\n"+
		"Dado en la sala de sesiones.", text)
	assert.NotContains(t, text, "TITULO")
	assert.NotContains(t, text, "Firma")
}

func TestParseJSONObjectTolerance(t *testing.T) {
	cases := map[string]string{
		"plain":   `{"articles":[]}`,
		"fenced":  "```json\n{\"articles\":[]}\n```",
		"chatter": "Here is the structure:\n{\"articles\":[]}\nLet me know.",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			obj, err := ParseJSONObject(in)
			require.NoError(t, err)
			assert.Contains(t, obj, "articles")
		})
	}

	_, err := ParseJSONObject("no json here")
	assert.Error(t, err)
	_, err = ParseJSONObject("[1,2]")
	assert.Error(t, err)
	_, err = ParseJSONObject("   ")
	assert.Error(t, err)
}

func TestFromRawIsLenient(t *testing.T) {
	doc := FromRaw(decode(t, `{"articles":[{"ordinal":3,"body":"x","order":7,"articles":[]}, "junk"]}`))
	require.Len(t, doc.Articles, 1)
	assert.Equal(t, "3", doc.Articles[0].Ordinal)
	assert.Equal(t, 0, doc.Articles[0].Order)
	assert.Equal(t, 1, doc.CountArticles())
}
