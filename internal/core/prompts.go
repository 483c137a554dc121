package core

// prompts.go defines the canned texts and the LLM system prompt used by
// the responders. Keeping them in a separate file makes them easy to
// tweak without touching the rest of the code.

const (
	// SystemPrompt instructs the assistant to stay supportive and
	// informational, and to never diagnose or prescribe.
	SystemPrompt = "You are a friendly healthcare assistant replying over a messaging channel. " +
		"Help the user describe their concern, remind them about appointments and medications when asked, " +
		"and keep answers short and plain. Never give a diagnosis, never prescribe, " +
		"and advise contacting a doctor or emergency services for anything urgent."

	// GreetingMessage is sent when a contact writes in with an empty body,
	// typically their very first touch.
	GreetingMessage = "Hello! I'm your healthcare assistant. How can I help you today?"

	// AckTemplate acknowledges a message when only the static responder is
	// configured.
	AckTemplate = "Thanks for your message: %q. A member of the care team will follow up shortly."

	// FallbackReply is used when the LLM is unreachable so the contact
	// still gets an answer.
	FallbackReply = "Sorry, I couldn't process your message right now. Please try again in a moment."
)
