package intent

// Polish keyword sets. Words are matched exactly after lower-casing, so
// every inflected form a visitor is likely to use is listed.
var (
	TurnOn   = NewSet("załącz", "włącz", "zapal")
	TurnOff  = NewSet("wyłącz", "zgaś")
	HangupW  = NewSet("koniec", "widzenia", "dziękuję")
	Light    = NewSet("lampę", "lampy", "światło")
	Package  = NewSet("paczkę", "paczka", "przesyłka", "przesyłkę")
	Bring    = NewSet("mam", "przywiozłem", "przyniosłem", "dostarczyć", "przyniósł")
	Confirm  = NewSet("tak", "oczywiście", "potwierdzam", "zgadza")
	Deny     = NewSet("nie")
	Guests   = NewSet("my", "gość", "goście", "znajomy", "znajomi", "przyjaciele", "rodzina", "sąsiad", "sąsiedzi")
	On       = NewSet("na")
	Party    = NewSet("imprezę", "imieniny", "urodziny", "party", "przyjęcie")
	VisitPre = NewSet("z", "w")
	VisitW   = NewSet("odwiedziny", "wizytą", "wizyta")
	Postman  = NewSet("listonosz", "poczta")
	Letter   = NewSet("polecony", "poleconym", "polecanym", "przesyłkę", "przesyłka")
	To       = NewSet("do")
	Sell     = NewSet("sprzedania", "zaoferowania")
)

// PolishRules is the command table in priority order.
func PolishRules() []Rule {
	return []Rule{
		{Intent: LightOn, Require: []Set{TurnOn, Light}},
		{Intent: LightOff, Require: []Set{TurnOff, Light}},
		{Intent: PackageOffer, Require: []Set{Bring, Package}},
		{Intent: RegisteredLetter, Require: []Set{Postman, Letter}},
		{Intent: PartyGuests, Require: []Set{Guests, On, Party}},
		{Intent: Visit, Require: []Set{VisitPre, VisitW}},
		{Intent: UnsolicitedOffer, Require: []Set{Bring, To, Sell}},
		{Intent: Hangup, Require: []Set{HangupW}},
	}
}

// PolishConfirmation answers a pending yes/no question. Affirmative is
// checked first.
func PolishConfirmation() []Rule {
	return []Rule{
		{Intent: Affirmative, Require: []Set{Confirm}},
		{Intent: Negative, Require: []Set{Deny}},
	}
}
