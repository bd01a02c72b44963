package draft

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

var nodeStatuses = map[string]struct{}{
	"todo":  {},
	"doing": {},
	"done":  {},
}

// Parse unmarshals raw model output and validates it against the bounds.
// Drafts cross a trust boundary, so this runs even when an upstream
// validator already accepted the same bytes.
func Parse(raw []byte, bounds Bounds) (Draft, error) {
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return Draft{}, ValidationErrors{{
			Field:   "json",
			Message: err.Error(),
		}}
	}
	if err := Validate(&d, bounds); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Validate checks the draft against the schema bounds, normalizing
// whitespace in place. It returns ValidationErrors listing every problem.
func Validate(d *Draft, bounds Bounds) error {
	defaults := DefaultBounds()
	if bounds.MaxIdeaLen == 0 {
		bounds.MaxIdeaLen = defaults.MaxIdeaLen
	}
	if bounds.MaxTitleLen == 0 {
		bounds.MaxTitleLen = defaults.MaxTitleLen
	}
	if bounds.MaxSummaryLen == 0 {
		bounds.MaxSummaryLen = defaults.MaxSummaryLen
	}
	if bounds.MaxDoneWhenLen == 0 {
		bounds.MaxDoneWhenLen = defaults.MaxDoneWhenLen
	}
	if bounds.MaxNotesLen == 0 {
		bounds.MaxNotesLen = defaults.MaxNotesLen
	}
	if bounds.MaxOutcomes == 0 {
		bounds.MaxOutcomes = defaults.MaxOutcomes
	}
	if bounds.MaxDeliverables == 0 {
		bounds.MaxDeliverables = defaults.MaxDeliverables
	}
	if bounds.MaxActions == 0 {
		bounds.MaxActions = defaults.MaxActions
	}

	var errs ValidationErrors

	d.Idea = strings.TrimSpace(d.Idea)
	d.Title = strings.TrimSpace(d.Title)
	d.Summary = strings.TrimSpace(d.Summary)

	errs = append(errs, checkText("idea", d.Idea, 1, bounds.MaxIdeaLen)...)
	errs = append(errs, checkText("title", d.Title, 1, bounds.MaxTitleLen)...)
	errs = append(errs, checkText("summary", d.Summary, 0, bounds.MaxSummaryLen)...)

	if len(d.Outcomes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "outcomes",
			Message: "must contain at least one outcome",
		})
	}
	if len(d.Outcomes) > bounds.MaxOutcomes {
		errs = append(errs, ValidationError{
			Field:   "outcomes",
			Message: fmt.Sprintf("at most %d outcomes allowed, got %d", bounds.MaxOutcomes, len(d.Outcomes)),
		})
	}

	for i := range d.Outcomes {
		errs = append(errs, validateOutcome(&d.Outcomes[i], fmt.Sprintf("outcomes[%d]", i), bounds)...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateOutcome(o *Outcome, fieldPath string, bounds Bounds) ValidationErrors {
	var errs ValidationErrors

	o.Title = strings.TrimSpace(o.Title)
	o.Summary = strings.TrimSpace(o.Summary)
	o.Status = strings.TrimSpace(o.Status)

	errs = append(errs, checkText(fieldPath+".title", o.Title, 1, bounds.MaxTitleLen)...)
	errs = append(errs, checkText(fieldPath+".summary", o.Summary, 0, bounds.MaxSummaryLen)...)
	errs = append(errs, checkStatus(fieldPath+".status", o.Status)...)

	if len(o.Deliverables) == 0 {
		errs = append(errs, ValidationError{
			Field:   fieldPath + ".deliverables",
			Message: "must contain at least one deliverable",
		})
	}
	if len(o.Deliverables) > bounds.MaxDeliverables {
		errs = append(errs, ValidationError{
			Field:   fieldPath + ".deliverables",
			Message: fmt.Sprintf("at most %d deliverables allowed, got %d", bounds.MaxDeliverables, len(o.Deliverables)),
		})
	}

	for i := range o.Deliverables {
		errs = append(errs, validateDeliverable(&o.Deliverables[i], fmt.Sprintf("%s.deliverables[%d]", fieldPath, i), bounds)...)
	}

	return errs
}

func validateDeliverable(dl *Deliverable, fieldPath string, bounds Bounds) ValidationErrors {
	var errs ValidationErrors

	dl.Title = strings.TrimSpace(dl.Title)
	dl.DoneWhen = strings.TrimSpace(dl.DoneWhen)
	dl.Notes = strings.TrimSpace(dl.Notes)
	dl.Status = strings.TrimSpace(dl.Status)

	errs = append(errs, checkText(fieldPath+".title", dl.Title, 1, bounds.MaxTitleLen)...)
	errs = append(errs, checkText(fieldPath+".done_when", dl.DoneWhen, 1, bounds.MaxDoneWhenLen)...)
	errs = append(errs, checkText(fieldPath+".notes", dl.Notes, 0, bounds.MaxNotesLen)...)
	errs = append(errs, checkStatus(fieldPath+".status", dl.Status)...)

	if len(dl.Actions) == 0 {
		errs = append(errs, ValidationError{
			Field:   fieldPath + ".actions",
			Message: "must contain at least one action",
		})
	}
	if len(dl.Actions) > bounds.MaxActions {
		errs = append(errs, ValidationError{
			Field:   fieldPath + ".actions",
			Message: fmt.Sprintf("at most %d actions allowed, got %d", bounds.MaxActions, len(dl.Actions)),
		})
	}

	for i := range dl.Actions {
		a := &dl.Actions[i]
		a.Title = strings.TrimSpace(a.Title)
		a.Status = strings.TrimSpace(a.Status)
		actionPath := fmt.Sprintf("%s.actions[%d]", fieldPath, i)
		errs = append(errs, checkText(actionPath+".title", a.Title, 1, bounds.MaxTitleLen)...)
		errs = append(errs, checkStatus(actionPath+".status", a.Status)...)
	}

	return errs
}

func checkText(fieldPath, value string, minLen, maxLen int) ValidationErrors {
	if len(value) < minLen {
		return ValidationErrors{{
			Field:   fieldPath,
			Message: "is required",
		}}
	}
	if len(value) > maxLen {
		return ValidationErrors{{
			Field:   fieldPath,
			Message: fmt.Sprintf("exceeds %d characters", maxLen),
		}}
	}
	return nil
}

func checkStatus(fieldPath, value string) ValidationErrors {
	if _, ok := nodeStatuses[value]; !ok {
		return ValidationErrors{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid status %q (expected todo, doing, or done)", value),
		}}
	}
	return nil
}
