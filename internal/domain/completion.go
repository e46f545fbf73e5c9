package domain

// IsItemComplete reports whether an item needs no further work: its analysis
// is terminal, the human answered every field (or, with no configured
// fields, gave at least one answer), and a transcript produced by the
// analysis has been judged.
func IsItemComplete(item *Item, fields []string) bool {
	if item == nil || !item.Status.IsTerminal() {
		return false
	}
	if len(item.UserAnswers) == 0 {
		return false
	}
	for _, f := range fields {
		if _, ok := item.UserAnswers[f]; !ok {
			return false
		}
	}
	if item.HasTranscript() && item.TranscriptCorrect == nil {
		return false
	}
	return true
}

// IsBatchComplete reports whether every item of a batch is complete.
// An empty item list is never complete.
func IsBatchComplete(items []*Item, fields []string) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !IsItemComplete(item, fields) {
			return false
		}
	}
	return true
}
