package calllog

import (
	"fmt"
	"sort"
)

// InteractionType names the interactive sub-flow a caller is currently in.
type InteractionType string

const (
	InteractionNone                InteractionType = "none"
	InteractionSurvey              InteractionType = "survey"
	InteractionSurveyPending       InteractionType = "survey_pending"
	InteractionPostcodeEntry       InteractionType = "postcode_entry"
	InteractionDistrictSelection   InteractionType = "district_selection"
	InteractionLookupPending       InteractionType = "lookup_pending"
	InteractionRedirecting         InteractionType = "redirecting"
	InteractionConferenceConnected InteractionType = "conference_connected"
)

// Answer is one selectable survey response. Key is what the caller sends.
type Answer struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// District is one selectable electoral district. Key is its 1-based
// position; "0" is reserved for "unsure".
type District struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Interaction is the view of the active sub-flow derived from the log tail.
type Interaction struct {
	Type      InteractionType `json:"type"`
	Message   string          `json:"message,omitempty"`
	Question  string          `json:"question,omitempty"`
	Answers   []Answer        `json:"answers,omitempty"`
	Districts []District      `json:"districts,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
}

// CurrentInteraction derives the active sub-flow from the last entry only.
// Entries without a payload never open an interaction.
func CurrentInteraction(log []Entry) Interaction {
	if len(log) == 0 {
		return Interaction{Type: InteractionNone}
	}
	last := log[len(log)-1]
	if last.Data == nil {
		return Interaction{Type: InteractionNone}
	}
	data := last.Data

	switch last.Kind {
	case KindSurvey:
		return Interaction{
			Type:     InteractionSurvey,
			Message:  last.Message,
			Question: surveyQuestion(data),
			Answers:  surveyAnswers(data),
			Data:     data,
		}
	case KindSurveyResult:
		return Interaction{Type: InteractionSurveyPending, Message: "Processing your response...", Data: data}
	case KindSelectElectorate:
		return districtSelection(data)
	case KindElectoralPostcode, KindElectoralTarget:
		return Interaction{
			Type:    InteractionPostcodeEntry,
			Message: withDefault(stringField(data, "message"), "Please enter your postcode"),
			Data:    data,
		}
	case KindElectoralLookup:
		if n, ok := numberField(data, "districtsFound"); ok && n > 1 {
			return districtSelection(data)
		}
		return Interaction{Type: InteractionLookupPending, Message: "Looking up your representative...", Data: data}
	case KindCallRedirecting:
		return Interaction{
			Type:    InteractionRedirecting,
			Message: withDefault(stringField(data, "message"), "Redirecting to target"),
			Data:    data,
		}
	case KindCallConnectedConference:
		return Interaction{
			Type:    InteractionConferenceConnected,
			Message: withDefault(stringField(data, "message"), "Connected to target"),
			Data:    data,
		}
	}
	return Interaction{Type: InteractionNone}
}

func districtSelection(data map[string]any) Interaction {
	var districts []District
	raw, _ := data["districts"].([]any)
	for i, d := range raw {
		name := ""
		switch v := d.(type) {
		case string:
			name = v
		case map[string]any:
			name = stringField(v, "name")
		default:
			name = fmt.Sprint(v)
		}
		districts = append(districts, District{Key: fmt.Sprint(i + 1), Name: name})
	}
	return Interaction{
		Type:      InteractionDistrictSelection,
		Message:   withDefault(stringField(data, "message"), "Please select your district"),
		Districts: districts,
		Data:      data,
	}
}

func surveyQuestion(data map[string]any) string {
	if qd, ok := data["questionData"].(map[string]any); ok {
		if name := stringField(qd, "name"); name != "" {
			return name
		}
	}
	if q := stringField(data, "question"); q != "" {
		return q
	}
	return withDefault(stringField(data, "message"), "Survey Question")
}

// surveyAnswers flattens questionData.answers, where each value is either a
// plain label or an object with a "value" label, into answers sorted by key.
func surveyAnswers(data map[string]any) []Answer {
	qd, ok := data["questionData"].(map[string]any)
	if !ok {
		return nil
	}
	answers, ok := qd["answers"].(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Answer, 0, len(keys))
	for _, k := range keys {
		label := ""
		switch v := answers[k].(type) {
		case map[string]any:
			label = fmt.Sprint(v["value"])
		default:
			label = fmt.Sprint(v)
		}
		out = append(out, Answer{Key: k, Label: label})
	}
	return out
}

func numberField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
