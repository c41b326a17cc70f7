package walker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/jobpilot/internal/models"
)

// Form field kinds recognized in the application modal
const (
	kindText     = "text"
	kindNumeric  = "numeric"
	kindTextarea = "textarea"
	kindSelect   = "select"
	kindRadio    = "radio"
	kindCheckbox = "checkbox"
	kindFile     = "file"
)

// field is one question on a form page
type field struct {
	// Selector addresses the input: by id, else by name
	Selector string
	Label    string
	Kind     string
	Required bool
	Options  []string
	// OptionValues holds <option> values for selects, option selectors for radio groups
	OptionValues []string
}

// idSelector addresses elements by id without CSS escaping concerns
func idSelector(id string) string {
	return fmt.Sprintf("[id=%q]", id)
}

func nameSelector(name string) string {
	return fmt.Sprintf("[name=%q]", name)
}

// selectorOf returns "" when the element can be addressed neither by id nor by name
func selectorOf(s *goquery.Selection) string {
	if id := strings.TrimSpace(s.AttrOr("id", "")); id != "" {
		return idSelector(id)
	}
	if name := strings.TrimSpace(s.AttrOr("name", "")); name != "" {
		return nameSelector(name)
	}
	return ""
}

func (f field) questionKind() models.QuestionKind {
	switch f.Kind {
	case kindNumeric:
		return models.QuestionNumeric
	case kindSelect, kindRadio:
		return models.QuestionSingleChoice
	default:
		return models.QuestionFreeText
	}
}

// accept normalizes a candidate answer, reporting false when it does not fit the field
func (f field) accept(answer string) (string, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}

	switch f.Kind {
	case kindNumeric:
		if _, err := strconv.ParseFloat(strings.ReplaceAll(answer, ",", ""), 64); err != nil {
			return "", false
		}
		return strings.ReplaceAll(answer, ",", ""), true

	case kindSelect, kindRadio:
		if i := f.optionIndex(answer); i >= 0 {
			return f.Options[i], true
		}
		return "", false
	}
	return answer, true
}

// optionIndex matches by case-insensitive text, then by 1-based position
func (f field) optionIndex(answer string) int {
	for i, opt := range f.Options {
		if strings.EqualFold(strings.TrimSpace(opt), answer) {
			return i
		}
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(f.Options) {
		return n - 1
	}
	return -1
}

// hint tells the human what shape of answer the field expects
func (f field) hint() string {
	switch f.Kind {
	case kindNumeric:
		return fmt.Sprintf("%q needs a number", f.Label)
	case kindSelect, kindRadio:
		return fmt.Sprintf("%q needs one of: %s", f.Label, strings.Join(f.Options, ", "))
	}
	return fmt.Sprintf("%q needs an answer", f.Label)
}

// parseFields reads the inputs of the current form page in document order.
// Inputs that cannot be addressed, and questions with no readable label, are left out.
func parseFields(html string) ([]field, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	labelOf := func(s *goquery.Selection) string {
		if id := s.AttrOr("id", ""); id != "" {
			if text := collapse(doc.Find(fmt.Sprintf("label[for=%q]", id)).First().Text()); text != "" {
				return text
			}
		}
		if text := collapse(s.AttrOr("aria-label", "")); text != "" {
			return text
		}
		if refs := strings.Fields(s.AttrOr("aria-labelledby", "")); len(refs) > 0 {
			var parts []string
			for _, ref := range refs {
				if text := collapse(doc.Find(idSelector(ref)).First().Text()); text != "" {
					parts = append(parts, text)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		}
		if text := collapse(s.Closest("label").Text()); text != "" {
			return text
		}
		if text := collapse(s.Closest(".jobs-easy-apply-form-section__grouping").Find("label, legend").First().Text()); text != "" {
			return text
		}
		return collapse(s.AttrOr("placeholder", ""))
	}

	var fields []field
	radioGroups := make(map[string]int)
	add := func(f field) {
		if f.Selector == "" {
			return
		}
		// a question nobody can read is never asked
		if f.Label == "" && f.Kind != kindCheckbox && f.Kind != kindFile {
			return
		}
		fields = append(fields, f)
	}

	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		required := isRequired(s)
		sel := selectorOf(s)

		switch goquery.NodeName(s) {
		case "select":
			f := field{Selector: sel, Label: labelOf(s), Kind: kindSelect, Required: required}
			s.Find("option").Each(func(_ int, o *goquery.Selection) {
				value, ok := o.Attr("value")
				if !ok {
					value = collapse(o.Text())
				}
				if value == "" {
					return
				}
				f.Options = append(f.Options, collapse(o.Text()))
				f.OptionValues = append(f.OptionValues, value)
			})
			add(f)
			return

		case "textarea":
			add(field{Selector: sel, Label: labelOf(s), Kind: kindTextarea, Required: required})
			return
		}

		inputType := strings.ToLower(s.AttrOr("type", "text"))
		switch inputType {
		case "hidden", "submit", "button", "reset", "image", "search":
			return

		case "radio":
			name := s.AttrOr("name", s.AttrOr("id", ""))
			option := s.AttrOr("value", "")
			if id := s.AttrOr("id", ""); id != "" {
				if text := collapse(doc.Find(fmt.Sprintf("label[for=%q]", id)).First().Text()); text != "" {
					option = text
				}
			} else if name != "" {
				sel = fmt.Sprintf("%s[value=%q]", nameSelector(name), s.AttrOr("value", ""))
			}
			if name == "" || sel == "" || option == "" {
				return
			}

			idx, ok := radioGroups[name]
			if !ok {
				legend := collapse(s.Closest("fieldset").Find("legend").First().Text())
				if legend == "" {
					legend = collapse(s.Closest("fieldset").AttrOr("aria-label", ""))
				}
				if legend == "" {
					return
				}
				fields = append(fields, field{Selector: nameSelector(name), Label: legend, Kind: kindRadio})
				idx = len(fields) - 1
				radioGroups[name] = idx
			}
			fields[idx].Options = append(fields[idx].Options, option)
			fields[idx].OptionValues = append(fields[idx].OptionValues, sel)
			fields[idx].Required = fields[idx].Required || required

		case "checkbox":
			add(field{Selector: sel, Label: labelOf(s), Kind: kindCheckbox, Required: required})

		case "file":
			add(field{Selector: sel, Label: labelOf(s), Kind: kindFile, Required: required})

		case "number":
			add(field{Selector: sel, Label: labelOf(s), Kind: kindNumeric, Required: required})

		default:
			kind := kindText
			if strings.Contains(strings.ToLower(s.AttrOr("id", s.AttrOr("name", ""))), "numeric") {
				kind = kindNumeric
			}
			add(field{Selector: sel, Label: labelOf(s), Kind: kind, Required: required})
		}
	})

	return fields, nil
}

func isRequired(s *goquery.Selection) bool {
	if _, ok := s.Attr("required"); ok {
		return true
	}
	return s.AttrOr("aria-required", "") == "true"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
