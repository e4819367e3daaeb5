package ollama

const maxPassageRunes = 4000

func buildRelevancePrompt(query, passage string) string {
	if r := []rune(passage); len(r) > maxPassageRunes {
		passage = string(r[:maxPassageRunes])
	}

	return `You judge whether a passage answers a compliance question.
Return strict JSON object {"score": number} where score is from 0 (irrelevant) to 1 (directly answers).
No markdown, no extra keys.

Question:
` + query + `

Passage:
` + passage
}
