package flow

// User-facing texts.
const (
	msgWelcome = "👋 Hi! I'm *SleepAdvisor*, I'll help you assess the quality of your sleep.\n\n" +
		"🧠 /check — take the survey and find out your sleep quality\n" +
		"💡 /help — tips for better sleep\n\n" +
		"Pick a command to begin!"
	msgGenericTips = "🧠 You haven't taken the sleep analysis yet!\n\n" +
		"💡 Here are some basic tips for better sleep anyway:\n" +
		"- Go to bed and get up at the same time every day.\n" +
		"- Avoid caffeine and alcohol before bed.\n" +
		"- Stay away from screens for an hour before sleep.\n" +
		"- Air the room and keep it cool.\n" +
		"- Do some light physical activity during the day.\n\n" +
		"Try /check to find out your sleep quality!"
	msgCachedResultFmt = "🧠 You have already taken the sleep analysis!\n\nYour result: %s\n\n%s"

	msgStarting          = "🧾 Starting the survey..."
	msgAnalysing         = "🔄 Analysing your sleep..."
	msgPredictionFmt     = "🧠 Model prediction: *%s*\n\n%s"
	msgSessionExpired    = "⚠️ Your session has expired. Send /check to start again."
	msgInvalidInput      = "❌ Invalid input. Please try again."
	msgPickOption        = "Please choose one of the options:"
	msgStaleButton       = "This button is no longer active."
	msgNoOptions         = "⚠️ Error: no answer options are available."
	msgGenericError      = "❌ Something went wrong. Please try /check again."
	msgInvalidData       = "⚠️ Some values are invalid. Please try /check again."
	msgUpstreamTimeout   = "⏱️ The server took too long to respond."
	msgUpstreamStatusFmt = "⚠️ API error: %d"
	msgUpstreamMalformed = "⚠️ The server returned an invalid response."
	msgUpstreamFailed    = "❌ An error occurred during the analysis. Please try again later."

	msgNoExercise        = "Got it, so you don't exercise 🙂"
	msgTooManyDays       = "There are only 7 days in a week! 😅 Please enter a realistic number."
	msgNoCoffee          = "Got it, so you don't drink coffee 🙂"
	msgNoAlcohol         = "Got it, so you don't drink 🙂"
	msgHeavyDrinking     = "Hmm..."
	msgTooManyAwakenings = "Um, did you sleep at all? Please enter it again:"
	msgTooMuchSleep      = "There are only 24 hours in a day! 😅 Please enter a realistic amount of sleep."
	msgNegativeAge1      = "Age can't be negative, you know...\nPlease try again:"
	msgNegativeAge2      = "Hmm...\nYou're a strange one 😅 One more time?"
	msgNegativeAgeForced = "Alright then... OK, recording it..."
	msgLongLiver         = "Wow, a true long-liver! 🎉"

	msgConfirmAge = "The longest documented human lifespan is 122 years and 164 days.\n" +
		"That record belongs to Jeanne Calment of France.\n" +
		"Are you sure you are older than her?"
	msgConfirmYesNo     = "Please answer yes or no."
	msgConfirmAcceptFmt = "OK, recording your age as %v"
	msgConfirmRejected  = "OK, then please enter a different age:"
)

// Confirmation callback data.
const (
	confirmPrefix = "AgeConfirm:"
	confirmYes    = confirmPrefix + "yes"
	confirmNo     = confirmPrefix + "no"
)
