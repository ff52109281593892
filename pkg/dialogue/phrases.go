package dialogue

import "time"

// Phrases holds everything the controller says or reports. Fields ending
// in Note are appended to the transcript in operator notifications.
type Phrases struct {
	Greeting      string
	NotUnderstood string

	LightAlreadyOn  string
	LightOn         string
	LightAlreadyOff string
	LightOff        string
	LightFailed     string

	PackageQuestion string
	PackageLeft     string
	PackageDeclined string

	LetterReply      string
	PartyReply       string
	VisitReply       string
	UnsolicitedReply string
	Goodbye          string
	DoorFailed       string

	PackageLeftNote     string
	PackageDeclinedNote string
	LetterNote          string
	PartyNote           string
	VisitNote           string

	NotificationTitle string
}

// PolishPhrases returns the Polish prompts.
func PolishPhrases() Phrases {
	return Phrases{
		Greeting:      "Witam. Kim jesteś i w jakiej sprawie?",
		NotUnderstood: "Przepraszam, proszę mówić wyraźnie, jednym zdaniem.",

		LightAlreadyOn:  "Światło jest już załączone.",
		LightOn:         "Potwierdzam załączenie światła.",
		LightAlreadyOff: "Światło jest już wyłączone.",
		LightOff:        "Potwierdzam wyłączenie światła.",
		LightFailed:     "Przepraszam, nie mogę teraz sterować światłem.",

		PackageQuestion: "Czy możesz zostawić paczkę pod drzwiami?",
		PackageLeft:     "Obiekt monitorowany, informacja przekazana, proszę wejść i zostawić paczkę pod drzwiami.",
		PackageDeclined: "Jeżeli nie, to proszę o kontakt na komórkę.",

		LetterReply:      "Zaraz ktoś podejdzie, proszę wejść i poczekać.",
		PartyReply:       "Przyjęcie w ogrodzie, proszę przejść na tył domu, czekamy.",
		VisitReply:       "Zapraszam, zaraz ktoś podejdzie.",
		UnsolicitedReply: "Dziękuję, ale nie jestem zainteresowana.",
		Goodbye:          "Do widzenia.",
		DoorFailed:       "Przepraszam, nie mogę otworzyć drzwi. Proszę o kontakt na komórkę.",

		PackageLeftNote:     " - kurier zostawił paczkę.",
		PackageDeclinedNote: " - kurier nie zostawił paczki.",
		LetterNote:          " - listonosz z poleconym.",
		PartyNote:           " - goście na imprezę.",
		VisitNote:           " - ktoś z wizytą.",

		NotificationTitle: "Domofon",
	}
}

// Timing holds the delays of the door and hangup sequences.
type Timing struct {
	PackageOpen    time.Duration
	PackageHangup  time.Duration
	Letter         time.Duration
	Party          time.Duration
	Visit          time.Duration
	Decline        time.Duration
	Goodbye        time.Duration
	DoorSettle     time.Duration
	NotifyTimeout  time.Duration
	ActuateTimeout time.Duration
}

// DefaultTiming returns delays long enough for each reply to be heard
// before the door opens or the line drops.
func DefaultTiming() Timing {
	return Timing{
		PackageOpen:    6 * time.Second,
		PackageHangup:  6 * time.Second,
		Letter:         4 * time.Second,
		Party:          5 * time.Second,
		Visit:          3 * time.Second,
		Decline:        5 * time.Second,
		Goodbye:        3 * time.Second,
		DoorSettle:     4 * time.Second,
		NotifyTimeout:  15 * time.Second,
		ActuateTimeout: 5 * time.Second,
	}
}
