package core

import "fmt"

// Fixed user-visible texts.
const (
	EmptyResponseText = "I'm sorry, I couldn't generate a response. Please try rephrasing your question."
	ErrorResponseText = "Oops! Something went wrong. Please try again later."
	FileReadErrorText = "Sorry, I couldn't read that file."
)

func uploadNotice(fileName string) string {
	return fmt.Sprintf("You have uploaded %s.", fileName)
}

func defaultAttachmentQuestion(fileName string) string {
	return fmt.Sprintf("Analyze this file: %s", fileName)
}

// buildPrompt wraps extracted file text around the question. Without file text the
// question is sent verbatim.
func buildPrompt(question, fileName, fileContent string) string {
	if fileContent == "" {
		return question
	}
	return fmt.Sprintf("Based on the content of the file \"%s\", answer the following question.\n\nFile Content:\n---\n%s\n---\n\nQuestion: %s", fileName, fileContent, question)
}
