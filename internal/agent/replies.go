package agent

import "math/rand"

// Canned reply pools keep every code path able to produce a reply even under
// total model unavailability.

var passiveReplies = []string{
	"I'm not sure I understand. Can you explain?",
	"Sorry, could you clarify that?",
	"I didn't quite get that. What do you mean?",
	"Hmm, can you rephrase?",
	"Not sure I follow. Can you explain differently?",
}

var injectionReplies = []string{
	"I'm not sure I understand. Can you explain normally?",
	"Sorry, I didn't catch that. Could you say it another way?",
	"Hmm, that doesn't make sense to me. Can you rephrase?",
}

var fallbackReplies = []string{
	"Can you verify your ID first?",
	"I need to confirm this. What's your official number?",
	"This sounds suspicious. Can you give me more details?",
	"I'm not comfortable with that. Can you provide verification?",
}

// PickPassiveReply returns a clarification reply for non-scam turns.
func PickPassiveReply() string {
	return passiveReplies[rand.Intn(len(passiveReplies))]
}

// PickInjectionReply returns a non-committal reply for injection attempts.
func PickInjectionReply() string {
	return injectionReplies[rand.Intn(len(injectionReplies))]
}

func pickFallbackReply() string {
	return fallbackReplies[rand.Intn(len(fallbackReplies))]
}
