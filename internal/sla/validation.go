package sla

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidatePolicy lists every configuration problem of p. An empty result means the policy
// can be saved; the caller decides whether a non-empty one blocks the save.
func ValidatePolicy(p *domain.SLAPolicy) []apperrors.FieldError {
	if p == nil {
		return []apperrors.FieldError{{Message: "policy is required"}}
	}

	var problems []apperrors.FieldError
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, apperrors.FieldError{
					Field:   fieldPath(fe),
					Message: fieldMessage(fe),
				})
			}
		} else {
			problems = append(problems, apperrors.FieldError{Message: err.Error()})
		}
	}

	problems = append(problems, validateTargets(p.Targets)...)
	problems = append(problems, validateCoverage(p.Coverage)...)

	if p.EffectiveTo != nil && !p.EffectiveFrom.IsZero() && !p.EffectiveFrom.Before(*p.EffectiveTo) {
		problems = append(problems, apperrors.FieldError{
			Field:   "effective_to",
			Message: "effective_from must be before effective_to",
		})
	}
	return problems
}

func validateTargets(targets map[domain.TicketPriority]domain.SLATarget) []apperrors.FieldError {
	var problems []apperrors.FieldError
	seen := make(map[domain.TicketPriority]bool, len(targets))
	for key, target := range targets {
		priority, ok := domain.ParsePriority(string(key))
		if !ok {
			problems = append(problems, apperrors.FieldError{
				Field:   fmt.Sprintf("targets[%s]", key),
				Message: "unknown priority",
			})
			continue
		}
		if seen[priority] {
			problems = append(problems, apperrors.FieldError{
				Field:   fmt.Sprintf("targets[%s]", key),
				Message: "priority configured more than once",
			})
		}
		seen[priority] = true
		if target.ResponseMinutes >= target.ResolutionMinutes {
			problems = append(problems, apperrors.FieldError{
				Field:   fmt.Sprintf("targets[%s]", priority),
				Message: fmt.Sprintf("response_minutes (%d) must be less than resolution_minutes (%d)", target.ResponseMinutes, target.ResolutionMinutes),
			})
		}
	}
	for _, priority := range domain.Priorities {
		if !seen[priority] {
			problems = append(problems, apperrors.FieldError{
				Field:   fmt.Sprintf("targets[%s]", priority),
				Message: "missing minute targets",
			})
		}
	}
	sortFieldErrors(problems)
	return problems
}

func validateCoverage(c calendar.Coverage) []apperrors.FieldError {
	var problems []apperrors.FieldError
	add := func(field, message string) {
		problems = append(problems, apperrors.FieldError{Field: "coverage." + field, Message: message})
	}

	switch c.Type {
	case calendar.Coverage247, calendar.CoverageBusinessHours, calendar.CoverageCustom:
	case "":
		add("type", "is required")
	default:
		add("type", fmt.Sprintf("must be one of [%s %s %s]", calendar.Coverage247, calendar.CoverageBusinessHours, calendar.CoverageCustom))
	}

	if _, err := c.Location(); err != nil {
		add("timezone", fmt.Sprintf("unknown timezone %q", c.Timezone))
	}
	for _, day := range c.BusinessDays {
		if _, ok := calendar.ParseWeekday(day); !ok {
			add("business_days", fmt.Sprintf("unknown weekday %q", day))
		}
	}
	for _, holiday := range c.Holidays {
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(holiday)); err != nil {
			add("holidays", fmt.Sprintf("holiday %q must use YYYY-MM-DD", holiday))
		}
	}

	if c.Type != calendar.CoverageBusinessHours && c.Type != calendar.CoverageCustom {
		return problems
	}

	start, startErr := calendar.ParseTimeOfDay(c.BusinessHoursStart)
	if startErr != nil {
		add("business_hours_start", startErr.Error())
	}
	end, endErr := calendar.ParseTimeOfDay(c.BusinessHoursEnd)
	if endErr != nil {
		add("business_hours_end", endErr.Error())
	}
	if startErr == nil && endErr == nil && start >= end {
		add("business_hours_end", "business_hours_start must be before business_hours_end")
	}
	if c.Type == calendar.CoverageCustom && len(c.BusinessDays) == 0 {
		add("business_days", "custom coverage requires at least one business day")
	}
	if len(problems) == 0 {
		if err := c.Validate(); err != nil {
			add("business_days", err.Error())
		}
	}
	return problems
}

// fieldPath drops the struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters long", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation for '%s'", fe.Tag())
	}
}

func sortFieldErrors(errs []apperrors.FieldError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
}
