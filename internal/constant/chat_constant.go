package constant

const (
	ChatSenderTypeUser = "user"
	ChatSenderTypeBot  = "bot"

	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

// SystemPrompt is prepended to every prompt sequence sent to the inference
// backend. Mirrors the assistant persona configured on the model side.
const SystemPrompt = "You are a helpful healthcare assistant. Provide accurate, concise information about health topics. For medical emergencies, advise seeking professional help. Do not diagnose or prescribe medication."

// StreamApology is appended to an in-flight response when the upstream
// stream fails after bytes have already been written to the client.
const StreamApology = "\n\nSorry, something went wrong while generating the rest of this answer. Please try again."

// ConversationTitleMaxRunes bounds titles derived from the first message.
const ConversationTitleMaxRunes = 50

const (
	ImageProcessModeSkin          = "skin"
	ImageProcessModeMedicalRecord = "medical-record"
)

// DiagnosisUserMessage is the user-side text stored with an uploaded image.
const DiagnosisUserMessage = "Uploaded an image for diagnosis"
