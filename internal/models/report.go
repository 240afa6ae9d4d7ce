package models

// Intelligence category names. These are the accumulator keys on a session
// and the field names of the final report.
const (
	CategoryPhoneNumbers       = "phoneNumbers"
	CategoryBankAccounts       = "bankAccounts"
	CategoryUPIIDs             = "upiIds"
	CategoryPhishingLinks      = "phishingLinks"
	CategoryEmailAddresses     = "emailAddresses"
	CategoryAadhaarNumbers     = "aadhaarNumbers"
	CategoryPANNumbers         = "panNumbers"
	CategoryCreditCards        = "creditCards"
	CategoryCaseIDs            = "caseIds"
	CategoryPolicyNumbers      = "policyNumbers"
	CategoryOrderNumbers       = "orderNumbers"
	CategorySuspiciousKeywords = "suspiciousKeywords"
)

// IntelCategories lists every accumulator a session tracks.
var IntelCategories = []string{
	CategoryPhoneNumbers,
	CategoryBankAccounts,
	CategoryUPIIDs,
	CategoryPhishingLinks,
	CategoryEmailAddresses,
	CategoryAadhaarNumbers,
	CategoryPANNumbers,
	CategoryCreditCards,
	CategoryCaseIDs,
	CategoryPolicyNumbers,
	CategoryOrderNumbers,
	CategorySuspiciousKeywords,
}

// IncomingRequest is the turn payload handed over by the transport layer.
type IncomingRequest struct {
	SessionID           string    `json:"sessionId"`
	Message             Message   `json:"message"`
	ConversationHistory []Message `json:"conversationHistory"`
}

// AgentReply is the synchronous response for a processed turn.
type AgentReply struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// ReportIntelligence is the intelligence section of a final report.
type ReportIntelligence struct {
	PhoneNumbers   []string `json:"phoneNumbers"`
	BankAccounts   []string `json:"bankAccounts"`
	UPIIDs         []string `json:"upiIds"`
	PhishingLinks  []string `json:"phishingLinks"`
	EmailAddresses []string `json:"emailAddresses"`
	CaseIDs        []string `json:"caseIds"`
	PolicyNumbers  []string `json:"policyNumbers"`
	OrderNumbers   []string `json:"orderNumbers"`
}

// FinalReport is the summary delivered to the external collector once a
// session has produced enough evidence.
type FinalReport struct {
	SessionID                 string             `json:"sessionId"`
	ScamDetected              bool               `json:"scamDetected"`
	ScamType                  string             `json:"scamType"`
	ConfidenceLevel           float64            `json:"confidenceLevel"`
	TotalMessagesExchanged    int                `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int                `json:"engagementDurationSeconds"`
	ExtractedIntelligence     ReportIntelligence `json:"extractedIntelligence"`
	AgentNotes                string             `json:"agentNotes"`
}
