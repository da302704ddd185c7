package classify

import "regexp"

// Light-weight entity extraction over normalized text. Handlers receive the
// map and decide what to do with it; nothing here is load-bearing for
// routing.
var (
	dateRefRe = regexp.MustCompile(`\b(hoy|manana|pasado manana|esta semana|semana que viene|este mes|mes que viene|proximo|siguiente)\b`)
	subjectRe = regexp.MustCompile(`\b(?:de|para) ([a-z][a-z ]{2,40})$`)
)

func extractEntities(normText string) map[string]string {
	var entities map[string]string
	put := func(k, v string) {
		if entities == nil {
			entities = make(map[string]string)
		}
		entities[k] = v
	}

	if m := dateRefRe.FindString(normText); m != "" {
		put("date_ref", m)
	}
	if m := subjectRe.FindStringSubmatch(normText); m != nil {
		put("subject", m[1])
	}
	return entities
}
