package draft

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() Draft {
	return Draft{
		Idea:    "learn woodworking",
		Title:   "Learn woodworking",
		Summary: "From hand tools up.",
		Outcomes: []Outcome{
			{
				Title:  "Master hand tool basics",
				Status: "todo",
				Deliverables: []Deliverable{
					{
						Title:    "A square-edged board",
						DoneWhen: "Four faces planed square.",
						Status:   "todo",
						Actions: []Action{
							{Title: "Sharpen the plane iron", Status: "todo"},
						},
					},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedDraft(t *testing.T) {
	d := validDraft()
	require.NoError(t, Validate(&d, Bounds{}))
}

func TestValidateTrimsWhitespaceInPlace(t *testing.T) {
	d := validDraft()
	d.Title = "  Learn woodworking  "
	d.Outcomes[0].Deliverables[0].DoneWhen = "\tFour faces planed square.\n"

	require.NoError(t, Validate(&d, Bounds{}))
	assert.Equal(t, "Learn woodworking", d.Title)
	assert.Equal(t, "Four faces planed square.", d.Outcomes[0].Deliverables[0].DoneWhen)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	d := validDraft()
	d.Title = ""
	d.Outcomes[0].Status = "blocked"
	d.Outcomes[0].Deliverables[0].Actions = nil

	err := Validate(&d, Bounds{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 3)

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "outcomes[0].status")
	assert.Contains(t, fields, "outcomes[0].deliverables[0].actions")
}

func TestValidateRequiresOutcomes(t *testing.T) {
	d := validDraft()
	d.Outcomes = nil

	err := Validate(&d, Bounds{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "outcomes", verrs[0].Field)
}

func TestValidateEnforcesFanOutBounds(t *testing.T) {
	d := validDraft()
	for i := 0; i < 7; i++ {
		d.Outcomes = append(d.Outcomes, d.Outcomes[0])
	}

	err := Validate(&d, Bounds{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.Error(), "at most 5 outcomes")

	// A configured override moves the limit.
	d2 := validDraft()
	for i := 0; i < 7; i++ {
		d2.Outcomes = append(d2.Outcomes, d2.Outcomes[0])
	}
	require.NoError(t, Validate(&d2, Bounds{MaxOutcomes: 10}))
}

func TestValidateEnforcesTextLengths(t *testing.T) {
	d := validDraft()
	d.Outcomes[0].Deliverables[0].DoneWhen = strings.Repeat("x", 501)

	err := Validate(&d, Bounds{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "outcomes[0].deliverables[0].done_when", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "exceeds 500")
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"), Bounds{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "json", verrs[0].Field)
}

func TestParseRoundTripsValidPayload(t *testing.T) {
	raw := []byte(`{
		"idea": "learn woodworking",
		"title": "Learn woodworking",
		"summary": "",
		"outcomes": [{
			"title": "Master hand tool basics",
			"summary": "",
			"status": "todo",
			"deliverables": [{
				"title": "A square-edged board",
				"done_when": "Four faces planed square.",
				"status": "doing",
				"actions": [
					{"title": "Sharpen the plane iron", "status": "done"},
					{"title": "Plane the reference face", "status": "todo"}
				]
			}]
		}]
	}`)

	d, err := Parse(raw, Bounds{})
	require.NoError(t, err)
	assert.Equal(t, "doing", d.Outcomes[0].Deliverables[0].Status)
	require.Len(t, d.Outcomes[0].Deliverables[0].Actions, 2)
}
