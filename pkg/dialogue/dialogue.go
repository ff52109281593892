// Package dialogue implements the per-call conversation with a visitor:
// it classifies each recognized utterance, answers through the speaker,
// and drives the door and light relays, operator notifications and
// delayed hangups.
//
// A Controller is not safe for concurrent use. Its owner serializes
// Start, Receive, Close and every function passed to Line.Schedule.
package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-doorbell/pkg/events"
	"github.com/teslashibe/go-doorbell/pkg/intent"
	"github.com/teslashibe/go-doorbell/pkg/notify"
	"github.com/teslashibe/go-doorbell/pkg/relay"
)

// TranscriptSeparator joins utterances in notification text.
const TranscriptSeparator = " # "

// State is the conversation state.
type State int

const (
	NotStarted State = iota
	AwaitingCommand
	AwaitingConfirmation
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case AwaitingCommand:
		return "awaiting_command"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Line is the controller's view of the call it serves.
type Line interface {
	// Active reports whether the call can still be acted on.
	Active() bool

	// Schedule runs fn after d, serialized with the controller's other
	// entry points, and only if the call is still active by then.
	Schedule(d time.Duration, fn func())

	// Hangup asks the telephony layer to end the call.
	Hangup()
}

// Speaker plays text to the visitor without blocking. Playback stops
// when ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// Config wires a Controller to its collaborators.
type Config struct {
	CallID   string
	Line     Line
	Speaker  Speaker
	Relay    relay.Pulser
	Notifier notify.Notifier

	// Context scopes the call. Speech still playing is cut off when it
	// is cancelled. Defaults to context.Background.
	Context context.Context

	// LampOn is the porch light state carried over from earlier calls.
	LampOn bool

	// Rules is the command table in priority order.
	// Defaults to intent.PolishRules.
	Rules []intent.Rule

	// Confirmation answers yes/no questions.
	// Defaults to intent.PolishConfirmation.
	Confirmation []intent.Rule

	Phrases Phrases
	Timing  Timing

	Events *events.Journal
	Logger *slog.Logger
}

// branch is one answer path of a pending question.
type branch struct {
	yes func()
	no  func()
}

// Controller is the state machine of one call.
type Controller struct {
	ctx      context.Context
	id       string
	line     Line
	speaker  Speaker
	relay    relay.Pulser
	notifier notify.Notifier
	phrases  Phrases
	timing   Timing
	events   *events.Journal
	logger   *slog.Logger

	commands *intent.Classifier
	answers  *intent.Classifier

	actions   map[intent.Intent]func()
	questions map[intent.Intent]string
	branches  map[intent.Intent]branch

	state      State
	pending    intent.Intent
	transcript []string
	lampOn     bool
}

// New creates a controller in the NotStarted state.
func New(cfg Config) *Controller {
	if cfg.Rules == nil {
		cfg.Rules = intent.PolishRules()
	}
	if cfg.Confirmation == nil {
		cfg.Confirmation = intent.PolishConfirmation()
	}
	if cfg.Phrases == (Phrases{}) {
		cfg.Phrases = PolishPhrases()
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}

	c := &Controller{
		ctx:      cfg.Context,
		id:       cfg.CallID,
		line:     cfg.Line,
		speaker:  cfg.Speaker,
		relay:    cfg.Relay,
		notifier: cfg.Notifier,
		phrases:  cfg.Phrases,
		timing:   cfg.Timing,
		events:   cfg.Events,
		logger:   cfg.Logger.With("component", "dialogue", "call_id", cfg.CallID),
		commands: intent.NewClassifier(cfg.Rules),
		answers:  intent.NewClassifier(cfg.Confirmation),
		lampOn:   cfg.LampOn,
	}
	c.actions = c.actionTable()
	c.questions = map[intent.Intent]string{
		intent.PackageOffer: c.phrases.PackageQuestion,
	}
	c.branches = map[intent.Intent]branch{
		intent.PackageOffer: {yes: c.packageLeft, no: c.packageDeclined},
	}
	return c
}

// Start greets the visitor and begins accepting commands.
func (c *Controller) Start() {
	if c.state != NotStarted {
		return
	}
	c.state = AwaitingCommand
	c.speak(c.phrases.Greeting)
}

// Receive processes one recognized utterance. Empty text is ignored.
func (c *Controller) Receive(utterance string) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return
	}
	if c.state == NotStarted || c.state == Closed {
		c.logger.Debug("utterance ignored", "state", c.state, "text", text)
		return
	}

	c.transcript = append(c.transcript, text)
	c.events.Record(events.Utterance, c.id, text)
	tokens := intent.Tokenize(text)

	if c.state == AwaitingConfirmation {
		if answer, ok := c.answers.ClassifyTokens(tokens); ok {
			c.answer(answer)
			return
		}
		if c.dispatch(tokens) {
			return
		}
		c.speak(c.questions[c.pending])
		return
	}

	if !c.dispatch(tokens) {
		c.logger.Info("no intent matched", "text", text)
		c.speak(c.phrases.NotUnderstood)
	}
}

// Close moves the controller to Closed. Later utterances are ignored.
func (c *Controller) Close() {
	c.state = Closed
}

// State returns the conversation state.
func (c *Controller) State() State { return c.state }

// Pending returns the intent whose question awaits an answer.
func (c *Controller) Pending() intent.Intent { return c.pending }

// LampOn reports the porch light state as last set by this call.
func (c *Controller) LampOn() bool { return c.lampOn }

// Transcript returns the utterances received so far.
func (c *Controller) Transcript() []string {
	return append([]string(nil), c.transcript...)
}

// dispatch runs the first matching command and reports whether one matched.
func (c *Controller) dispatch(tokens intent.Set) bool {
	id, ok := c.commands.ClassifyTokens(tokens)
	if !ok {
		return false
	}
	c.logger.Info("intent matched", "intent", id)
	c.events.Record(events.IntentMatch, c.id, string(id))

	if c.state == AwaitingConfirmation {
		c.pending = intent.None
		c.state = AwaitingCommand
	}

	action, ok := c.actions[id]
	if !ok {
		c.logger.Warn("intent has no action", "intent", id)
		return true
	}
	action()
	return true
}

func (c *Controller) answer(answer intent.Intent) {
	pending := c.pending
	c.pending = intent.None
	c.state = AwaitingCommand

	c.logger.Info("question answered", "intent", pending, "answer", answer)
	c.events.Record(events.IntentMatch, c.id, string(pending)+":"+string(answer))

	b, ok := c.branches[pending]
	if !ok {
		return
	}
	if answer == intent.Affirmative {
		b.yes()
	} else {
		b.no()
	}
}

// speak is a no-op once the call is no longer active.
func (c *Controller) speak(text string) {
	if text == "" {
		return
	}
	if !c.line.Active() {
		c.logger.Debug("call inactive, not speaking", "text", text)
		return
	}
	c.speaker.Speak(c.ctx, text)
	c.events.Record(events.Spoken, c.id, text)
}

// ask poses a yes/no question for id.
func (c *Controller) ask(id intent.Intent) {
	c.speak(c.questions[id])
	c.pending = id
	c.state = AwaitingConfirmation
}

// notify sends the transcript plus suffix to the operator in the
// background. Failures are logged only.
func (c *Controller) notify(suffix string) {
	if c.notifier == nil {
		return
	}
	msg := notify.Message{
		Title: c.phrases.NotificationTitle,
		Text:  strings.Join(c.transcript, TranscriptSeparator) + suffix,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timing.NotifyTimeout)
		defer cancel()
		if err := c.notifier.Notify(ctx, msg); err != nil {
			c.logger.Warn("notification failed", "error", err)
			return
		}
		c.events.Record(events.Notified, c.id, msg.Text)
	}()
}

// actuate pulses a relay and reports success.
func (c *Controller) actuate(r int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.timing.ActuateTimeout)
	defer cancel()

	if err := c.relay.Pulse(ctx, r); err != nil {
		c.logger.Error("relay failed", "relay", r, "error", err)
		c.events.Record(events.RelayFailed, c.id, err.Error())
		return false
	}
	c.events.Record(events.RelayPulse, c.id, relayName(r))
	return true
}

// openDoor speaks message, opens the door after delay and hangs up once
// the visitor has had time to walk in.
func (c *Controller) openDoor(message string, delay time.Duration) {
	c.state = Closed
	c.speak(message)
	c.line.Schedule(delay, func() {
		if !c.actuate(relay.Door) {
			c.speak(c.phrases.DoorFailed)
		}
		c.line.Schedule(c.timing.DoorSettle, c.line.Hangup)
	})
}

// hangupAfter speaks message and hangs up after delay.
func (c *Controller) hangupAfter(message string, delay time.Duration) {
	c.state = Closed
	c.speak(message)
	c.line.Schedule(delay, c.line.Hangup)
}

func relayName(r int) string {
	switch r {
	case relay.Door:
		return "door"
	case relay.Light:
		return "light"
	default:
		return "relay"
	}
}
