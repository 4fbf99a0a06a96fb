package llm

const (
	markdownQuestionsInstruction = "You are a study assistant. Read the following markdown document the user wrote " +
		"and produce recall questions that test whether they still remember what they learned. " +
		"Questions must be answerable from the document alone. " +
		"Respond with a JSON array of question strings only, no prose and no markdown fences."

	diffQuestionsInstruction = "You are a study assistant. Read the following code diff summary and produce recall " +
		"questions focused on the purpose of the change, the behavior it alters, and its impact. " +
		"Do not ask about line numbers or formatting. " +
		"Respond with a JSON array of question strings only, no prose and no markdown fences."

	structuredMarkdownInstruction = "You are a study assistant generating spaced-repetition flashcards. Read the " +
		"markdown document the user wrote and produce question/answer pairs that test whether they still remember " +
		"what they learned. Each answer must be self-contained. For each card, include highlights: exact verbatim " +
		"substrings copied from the answer text that justify the question. Never paraphrase inside highlights."

	structuredDiffInstruction = "You are a study assistant generating spaced-repetition flashcards. Read the code " +
		"diff summary and produce question/answer pairs focused on the purpose of the change, the behavior it " +
		"alters, and its impact. Each answer must be self-contained. For each card, include highlights: exact " +
		"verbatim substrings copied from the answer text that justify the question. Never paraphrase inside highlights."

	regenerateInstruction = "You are a study assistant. The user already has a flashcard for the code diff below " +
		"but wants a DIFFERENT question. Produce exactly one new question that is clearly different from the " +
		"existing one while still being answered by the same answer text. Keep the answer unchanged. Include " +
		"highlights: exact verbatim substrings copied from the answer text that justify the new question."
)

func questionsInstruction(contentType ContentType) string {
	if contentType == ContentMarkdown {
		return markdownQuestionsInstruction
	}
	return diffQuestionsInstruction
}

func structuredInstruction(contentType ContentType) string {
	if contentType == ContentMarkdown {
		return structuredMarkdownInstruction
	}
	return structuredDiffInstruction
}
