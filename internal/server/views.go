package server

import (
	"time"

	"planloom/internal/planstore"
)

// JSON views mirror the resolver structures with stable field names for the
// integration surface.

type planJSON struct {
	ID        string   `json:"id"`
	Idea      string   `json:"idea"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Status    string   `json:"status"`
	Research  []string `json:"research,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type outcomeJSON struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
	Order   int    `json:"order"`
}

type deliverableJSON struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	DoneWhen string `json:"done_when"`
	Notes    string `json:"notes,omitempty"`
	Status   string `json:"status"`
	Order    int    `json:"order"`
}

type actionJSON struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Order  int    `json:"order"`
}

type deliverableDetailJSON struct {
	deliverableJSON
	Actions []actionJSON `json:"actions"`
}

type outcomeDetailJSON struct {
	outcomeJSON
	Deliverables []deliverableDetailJSON `json:"deliverables"`
}

type planDetailJSON struct {
	planJSON
	Outcomes []outcomeDetailJSON `json:"outcomes"`
}

type pendingDeliverableJSON struct {
	Deliverable deliverableJSON `json:"deliverable"`
	Actions     []actionJSON    `json:"actions"`
}

type pendingJSON struct {
	Done         bool                     `json:"done"`
	Outcome      *outcomeJSON             `json:"outcome,omitempty"`
	Deliverables []pendingDeliverableJSON `json:"deliverables"`
	SummaryLines []string                 `json:"summary_lines"`
}

func toPlanJSON(p planstore.Plan) planJSON {
	return planJSON{
		ID:        p.ID,
		Idea:      p.Idea,
		Title:     p.Title,
		Summary:   p.Summary,
		Status:    string(p.Status),
		Research:  p.Research,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toOutcomeJSON(o planstore.Outcome) outcomeJSON {
	return outcomeJSON{
		ID:      o.ID,
		Title:   o.Title,
		Summary: o.Summary,
		Status:  string(o.Status),
		Order:   o.Position,
	}
}

func toDeliverableJSON(d planstore.Deliverable) deliverableJSON {
	return deliverableJSON{
		ID:       d.ID,
		Title:    d.Title,
		DoneWhen: d.DoneWhen,
		Notes:    d.Notes,
		Status:   string(d.Status),
		Order:    d.Position,
	}
}

func toActionJSON(a planstore.Action) actionJSON {
	return actionJSON{
		ID:     a.ID,
		Title:  a.Title,
		Status: string(a.Status),
		Order:  a.Position,
	}
}

func toDetailJSON(detail *planstore.PlanDetail) planDetailJSON {
	out := planDetailJSON{planJSON: toPlanJSON(detail.Plan)}
	for _, od := range detail.Outcomes {
		oj := outcomeDetailJSON{outcomeJSON: toOutcomeJSON(od.Outcome)}
		for _, dd := range od.Deliverables {
			dj := deliverableDetailJSON{deliverableJSON: toDeliverableJSON(dd.Deliverable)}
			for _, a := range dd.Actions {
				dj.Actions = append(dj.Actions, toActionJSON(a))
			}
			oj.Deliverables = append(oj.Deliverables, dj)
		}
		out.Outcomes = append(out.Outcomes, oj)
	}
	return out
}

func toPendingJSON(pending *planstore.PendingWork) pendingJSON {
	out := pendingJSON{
		Done:         pending.Done,
		SummaryLines: pending.SummaryLines,
	}
	if pending.Outcome != nil {
		oj := toOutcomeJSON(*pending.Outcome)
		out.Outcome = &oj
	}
	for _, pd := range pending.Deliverables {
		pj := pendingDeliverableJSON{Deliverable: toDeliverableJSON(pd.Deliverable)}
		for _, a := range pd.Actions {
			pj.Actions = append(pj.Actions, toActionJSON(a))
		}
		out.Deliverables = append(out.Deliverables, pj)
	}
	return out
}
